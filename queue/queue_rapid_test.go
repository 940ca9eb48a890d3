package queue

import (
	"testing"

	"pgregory.net/rapid"
)

// TestQueueNeverExceedsBoundAndKeepsSuffix checks the drop-oldest
// invariant across arbitrary push sequences: the queue never grows past
// maxLength, and whatever remains is exactly the suffix of pushed
// buffers, in order.
func TestQueueNeverExceedsBoundAndKeepsSuffix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxLength := rapid.IntRange(1, 16).Draw(t, "maxLength")
		n := rapid.IntRange(0, 64).Draw(t, "n")

		q := New(maxLength)
		pushedTags := make([][]byte, n)
		for i := 0; i < n; i++ {
			tag := []byte{byte(i), byte(i >> 8)}
			pushedTags[i] = tag
			q.Push(tag)
			if q.Len() > maxLength {
				t.Fatalf("queue length %d exceeds bound %d", q.Len(), maxLength)
			}
		}

		wantLen := n
		if wantLen > maxLength {
			wantLen = maxLength
		}
		if q.Len() != wantLen {
			t.Fatalf("final length %d, want %d", q.Len(), wantLen)
		}

		wantSuffix := pushedTags[n-wantLen:]
		for i := 0; i < wantLen; i++ {
			got, ok := q.PopBlocking()
			if !ok {
				t.Fatalf("PopBlocking returned ok=false with %d buffers expected", wantLen-i)
			}
			if string(got) != string(wantSuffix[i]) {
				t.Fatalf("position %d: got %v, want %v", i, got, wantSuffix[i])
			}
		}

		gotPushed := q.Pushed()
		if gotPushed != uint64(n) {
			t.Fatalf("Pushed() = %d, want %d", gotPushed, n)
		}
		wantDropped := uint64(0)
		if n > maxLength {
			wantDropped = uint64(n - maxLength)
		}
		if q.Dropped() != wantDropped {
			t.Fatalf("Dropped() = %d, want %d", q.Dropped(), wantDropped)
		}
	})
}
