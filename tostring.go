package jserror

// ErrorToString implements Error.prototype.toString on o: name defaults to
// "Error" and message to the empty string, and the two are joined with ": "
// unless either is empty. Getter and coercion failures are returned.
func (ctx *Context) ErrorToString(o *Object) (string, error) {
	recv := o.Value()

	name := "Error"
	v, err := o.get(AtomName, recv)
	if err != nil {
		return "", err
	}
	if !v.IsUndefined() {
		if name, err = ctx.ToString(v); err != nil {
			return "", err
		}
	}

	msg := ""
	v, err = o.get(AtomMessage, recv)
	if err != nil {
		return "", err
	}
	if !v.IsUndefined() {
		if msg, err = ctx.ToString(v); err != nil {
			return "", err
		}
	}

	if name == "" || msg == "" {
		return joinNameMessage(name, msg), nil
	}
	s, err := ctx.newString(joinNameMessage(name, msg))
	if err != nil {
		return "", err
	}
	return s.str, nil
}

// SetMessage defines message on the Error as a non-enumerable data property,
// coercing non-string values with ToString.
func (ctx *Context) SetMessage(errObj *Object, message Value) error {
	if !message.IsString() {
		s, err := ctx.ToString(message)
		if err != nil {
			return err
		}
		message = ctx.String(s)
	}
	return errObj.defineValue(AtomMessage, message, flagsNonEnumerable)
}
