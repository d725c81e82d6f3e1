package scanner

// Window returns the next range (cursor, to] that is safe to scan. ok is false when the
// ledger has no confirmed block above the cursor.
func Window(cursor, height, confirmationDepth, maxBatchBlocks uint64) (from, to uint64, ok bool) {
	if height <= cursor || height < confirmationDepth {
		return 0, 0, false
	}
	if maxBatchBlocks == 0 {
		maxBatchBlocks = 1
	}
	to = min(height-confirmationDepth, cursor+maxBatchBlocks)
	if to <= cursor {
		return 0, 0, false
	}
	return cursor + 1, to, true
}
