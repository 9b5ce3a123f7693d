package profiles

// Changes carries a partial profile update; nil fields are left untouched.
type Changes struct {
	FullName *string
	Phone    *string
	Address  *string
}

// Empty reports whether no field was provided.
func (c Changes) Empty() bool {
	return c.FullName == nil && c.Phone == nil && c.Address == nil
}

func (c Changes) columns() map[string]any {
	out := map[string]any{}
	if c.FullName != nil {
		out["full_name"] = *c.FullName
	}
	if c.Phone != nil {
		out["phone"] = *c.Phone
	}
	if c.Address != nil {
		out["address"] = *c.Address
	}
	return out
}
