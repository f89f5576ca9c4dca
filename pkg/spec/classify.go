package spec

import (
	"fmt"
	"reflect"

	tferr "github.com/typefence/typefence/pkg/err"
)

// classifier appends classified nodes into a tree arena. Forward references
// keep a pointer to the classifier's registry as their resolution scope.
type classifier struct {
	t   *Tree
	reg *Registry
}

// originTable maps the concrete type of a composite marker to its
// classification function. The table is static; rule ordering in classify
// exists only for performance, the triggers are mutually exclusive by
// construction.
var originTable map[reflect.Type]func(*classifier, any) (Handle, error)

func init() {
	originTable = map[reflect.Type]func(*classifier, any) (Handle, error){
		reflect.TypeOf(unionMarker{}):     classifyUnion,
		reflect.TypeOf(sliceMarker{}):     classifySlice,
		reflect.TypeOf(mapMarker{}):       classifyMap,
		reflect.TypeOf(tupleMarker{}):     classifyTuple,
		reflect.TypeOf(recordMarker{}):    classifyRecord,
		reflect.TypeOf(literalMarker{}):   classifyLiteral,
		reflect.TypeOf(predicateMarker{}): classifyPredicate,
	}
}

// Classify maps a raw specification to a canonical node tree, or fails
// with ErrUnsupportedSpecification for shapes matching no rule.
//
// Parameters:
//
//	raw any: The raw specification object.
//	reg *Registry: The resolution scope for forward references (may be nil
//	when the specification contains none).
//
// Returns:
//
//	*Tree: The classified, not yet reduced tree.
//	error: An error if the specification shape is unsupported.
func Classify(raw any, reg *Registry) (*Tree, error) {
	t := &Tree{root: NoHandle}
	c := &classifier{t: t, reg: reg}
	root, err := c.classify(raw)
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

// classify applies the ordered rule list: builtin sentinels, composite
// origin shapes, plain types, callables, deferred names.
func (c *classifier) classify(raw any) (Handle, error) {
	switch v := raw.(type) {
	case nil:
		return NoHandle, tferr.ErrUnsupported("nil specification (use spec.None or spec.Any)")
	case anyMarker:
		return c.t.add(Node{Sign: SignIgnorable}), nil
	case noneMarker:
		return c.t.add(Node{Sign: SignAtomic}), nil
	case reflect.Type:
		return c.classifyType(v)
	case func(any) bool:
		return classifyPredicate(c, predicateMarker{fn: v})
	case string:
		return c.t.add(Node{Sign: SignForward, Name: v, scope: c.reg}), nil
	default:
		if fn, ok := originTable[reflect.TypeOf(raw)]; ok {
			return fn(c, raw)
		}
		return NoHandle, tferr.ErrUnsupported(fmt.Sprintf("%T", raw))
	}
}

// classifyType classifies a plain reflect.Type. Composite kinds become
// containers with structurally derived children; the empty interface is
// the builtin "any object" and becomes ignorable; everything else is an
// atomic instance check.
func (c *classifier) classifyType(typ reflect.Type) (Handle, error) {
	switch typ.Kind() {
	case reflect.Slice:
		elem, err := c.classifyType(typ.Elem())
		if err != nil {
			return NoHandle, err
		}
		return c.t.add(Node{
			Sign:     SignContainer,
			Type:     typ,
			Kind:     reflect.Slice,
			Arity:    ArityVariadic,
			Children: []Handle{elem},
		}), nil
	case reflect.Array:
		elem, err := c.classifyType(typ.Elem())
		if err != nil {
			return NoHandle, err
		}
		children := make([]Handle, typ.Len())
		for i := range children {
			children[i] = elem
		}
		return c.t.add(Node{
			Sign:     SignContainer,
			Type:     typ,
			Kind:     reflect.Array,
			Arity:    ArityFixed,
			Length:   typ.Len(),
			Children: children,
		}), nil
	case reflect.Map:
		key, err := c.classifyType(typ.Key())
		if err != nil {
			return NoHandle, err
		}
		val, err := c.classifyType(typ.Elem())
		if err != nil {
			return NoHandle, err
		}
		return c.t.add(Node{
			Sign:     SignContainer,
			Type:     typ,
			Kind:     reflect.Map,
			Arity:    ArityKeyValue,
			Children: []Handle{key, val},
		}), nil
	case reflect.Interface:
		if typ.NumMethod() == 0 {
			return c.t.add(Node{Sign: SignIgnorable}), nil
		}
		return c.t.add(Node{Sign: SignAtomic, Type: typ}), nil
	default:
		return c.t.add(Node{Sign: SignAtomic, Type: typ}), nil
	}
}

func classifyUnion(c *classifier, raw any) (Handle, error) {
	m := raw.(unionMarker)
	if len(m.alts) == 0 {
		return NoHandle, tferr.ErrUnsupported("union with no alternatives")
	}
	children := make([]Handle, 0, len(m.alts))
	for _, alt := range m.alts {
		h, err := c.classify(alt)
		if err != nil {
			return NoHandle, err
		}
		children = append(children, h)
	}
	return c.t.add(Node{Sign: SignUnion, Children: children}), nil
}

func classifySlice(c *classifier, raw any) (Handle, error) {
	m := raw.(sliceMarker)
	elem, err := c.classify(m.elem)
	if err != nil {
		return NoHandle, err
	}
	return c.t.add(Node{
		Sign:     SignContainer,
		Kind:     reflect.Slice,
		Arity:    ArityVariadic,
		Children: []Handle{elem},
	}), nil
}

func classifyMap(c *classifier, raw any) (Handle, error) {
	m := raw.(mapMarker)
	key, err := c.classify(m.key)
	if err != nil {
		return NoHandle, err
	}
	val, err := c.classify(m.val)
	if err != nil {
		return NoHandle, err
	}
	return c.t.add(Node{
		Sign:     SignContainer,
		Kind:     reflect.Map,
		Arity:    ArityKeyValue,
		Children: []Handle{key, val},
	}), nil
}

func classifyTuple(c *classifier, raw any) (Handle, error) {
	m := raw.(tupleMarker)
	children := make([]Handle, 0, len(m.elems))
	for _, e := range m.elems {
		h, err := c.classify(e)
		if err != nil {
			return NoHandle, err
		}
		children = append(children, h)
	}
	return c.t.add(Node{
		Sign:     SignContainer,
		Kind:     reflect.Slice,
		Arity:    ArityFixed,
		Length:   len(children),
		Children: children,
	}), nil
}

func classifyRecord(c *classifier, raw any) (Handle, error) {
	m := raw.(recordMarker)
	if len(m.fields) != len(m.specs) {
		return NoHandle, tferr.ErrUnsupported(fmt.Sprintf("record with %d fields but %d specifications", len(m.fields), len(m.specs)))
	}
	children := make([]Handle, 0, len(m.specs))
	for _, s := range m.specs {
		h, err := c.classify(s)
		if err != nil {
			return NoHandle, err
		}
		children = append(children, h)
	}
	fields := make([]string, len(m.fields))
	copy(fields, m.fields)
	return c.t.add(Node{
		Sign:     SignContainer,
		Kind:     reflect.Map,
		Arity:    ArityRecord,
		Fields:   fields,
		Children: children,
	}), nil
}

func classifyLiteral(c *classifier, raw any) (Handle, error) {
	m := raw.(literalMarker)
	if len(m.values) == 0 {
		return NoHandle, tferr.ErrUnsupported("literal with no values")
	}
	values := make([]any, len(m.values))
	copy(values, m.values)
	return c.t.add(Node{Sign: SignLiteral, Values: values}), nil
}

func classifyPredicate(c *classifier, raw any) (Handle, error) {
	m := raw.(predicateMarker)
	if m.fn == nil {
		return NoHandle, tferr.ErrUnsupported("nil predicate function")
	}
	return c.t.add(Node{Sign: SignPredicate, Pred: m.fn}), nil
}
