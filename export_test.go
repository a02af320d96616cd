package vecvm

// HasHandler reports whether op has an entry in the dispatch table.
func HasHandler(op Opcode) bool {
	return dispatchTable[op] != nil
}
