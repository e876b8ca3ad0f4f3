package dispatch

import "reflect"

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// packResults flattens a target's reflect.Value return list into the
// (any, error) shape the Pre/Post hook protocol operates on: if the last
// return value's type implements error, it is split out and the remaining
// values become the single "result" (nil, a lone value, or a []any for
// multiple), so loggers never need to know a target's exact signature.
func packResults(results []reflect.Value) (any, error) {
	if len(results) == 0 {
		return nil, nil
	}

	values := results
	var callErr error
	last := results[len(results)-1]
	if last.Type().Implements(errorType) {
		if !last.IsNil() {
			callErr, _ = last.Interface().(error)
		}
		values = results[:len(results)-1]
	}

	switch len(values) {
	case 0:
		return nil, callErr
	case 1:
		return values[0].Interface(), callErr
	default:
		out := make([]any, len(values))
		for i, v := range values {
			out[i] = v.Interface()
		}
		return out, callErr
	}
}

// unpackResults rebuilds the []reflect.Value a reflect.MakeFunc-built
// dispatcher must return, matching fnType's declared output signature,
// from the packed (result, err) pair produced by the chain. Missing
// trailing values (e.g. a target with a single named return plus error
// where the chain produced only the error) are filled with the zero value.
func unpackResults(fnType reflect.Type, result any, callErr error) []reflect.Value {
	numOut := fnType.NumOut()
	out := make([]reflect.Value, numOut)

	valuesWanted := numOut
	hasErrorOut := numOut > 0 && fnType.Out(numOut-1).Implements(errorType)
	if hasErrorOut {
		valuesWanted--
	}

	var values []any
	switch v := result.(type) {
	case nil:
		values = nil
	case []any:
		values = v
	default:
		values = []any{v}
	}

	for i := 0; i < valuesWanted; i++ {
		outType := fnType.Out(i)
		if i < len(values) && values[i] != nil {
			out[i] = coerce(reflect.ValueOf(values[i]), outType)
		} else {
			out[i] = reflect.Zero(outType)
		}
	}

	if hasErrorOut {
		errType := fnType.Out(numOut - 1)
		if callErr == nil {
			out[numOut-1] = reflect.Zero(errType)
		} else {
			out[numOut-1] = reflect.ValueOf(callErr)
		}
	}

	return out
}

// coerce converts v to target when it is directly assignable or
// convertible, returning v verbatim otherwise (a logger that returns a
// value of the wrong shape is a logger bug the dispatcher should not mask
// by panicking mid-call; the original reflect.Value wins and the eventual
// reflect.MakeFunc call will surface a clear panic if it truly mismatches).
func coerce(v reflect.Value, target reflect.Type) reflect.Value {
	if v.Type().AssignableTo(target) {
		return v
	}
	if v.Type().ConvertibleTo(target) {
		return v.Convert(target)
	}
	return v
}
