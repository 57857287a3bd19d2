package dispatch

// Builtin returns the step library. Ids are grouped by collaborator.
func Builtin() *Table {
	t := NewTable()
	registerAPI(t)
	registerUI(t)
	registerDB(t)
	registerData(t)
	return t
}
