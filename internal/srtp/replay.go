package srtp

// replayWindow remembers which of the most recent packet indices have been
// accepted. Indices at or above next have not been seen yet; indices more
// than width below next are treated as replays.
type replayWindow struct {
	next  uint64
	width uint64
	bits  []uint64
}

func newReplayWindow(width int) replayWindow {
	return replayWindow{
		width: uint64(width),
		bits:  make([]uint64, width/64),
	}
}

func (w *replayWindow) bit(index uint64) (word int, mask uint64) {
	pos := index % w.width
	return int(pos / 64), 1 << (pos % 64)
}

// seen reports whether index must be rejected as a replay.
func (w *replayWindow) seen(index uint64) bool {
	if index >= w.next {
		return false
	}
	if w.next-index > w.width {
		return true
	}
	word, mask := w.bit(index)
	return w.bits[word]&mask != 0
}

// accept records index, sliding the window forward if needed.
func (w *replayWindow) accept(index uint64) {
	if index >= w.next {
		if index-w.next >= w.width {
			clear(w.bits)
			w.next = index + 1
		} else {
			for ; w.next <= index; w.next++ {
				word, mask := w.bit(w.next)
				w.bits[word] &^= mask
			}
		}
	}
	word, mask := w.bit(index)
	w.bits[word] |= mask
}
