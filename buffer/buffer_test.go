package buffer

import "testing"

func TestMakeManagedFillAndBytes(t *testing.T) {
	b := MakeManaged(8)
	defer b.Release()

	if err := b.Fill(8, 'x'); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	for i, c := range data {
		if c != 'x' {
			t.Errorf("byte %d = %q, want 'x'", i, c)
		}
	}
}

func TestMakeExternalFinalizerRunsOnce(t *testing.T) {
	data := make([]byte, 4)
	calls := 0
	b := MakeExternal(data, func() { calls++ }, "test")

	s, err := b.Slice(0, 2)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}

	b.Release()
	if calls != 0 {
		t.Fatalf("finalizer ran before last reference dropped: %d calls", calls)
	}

	s.Release()
	if calls != 1 {
		t.Fatalf("finalizer ran %d times, want 1", calls)
	}

	// Releasing again must not re-invoke the finalizer.
	s.Release()
	if calls != 1 {
		t.Fatalf("finalizer ran %d times after double release, want 1", calls)
	}
}

func TestDetachedBufferRejectsOperations(t *testing.T) {
	b := MakeManaged(4)
	b.Release()

	if b.Validate(1) {
		t.Error("Validate succeeded on a detached buffer")
	}
	if _, err := b.Bytes(); err != ErrDetached {
		t.Errorf("Bytes err = %v, want ErrDetached", err)
	}
	if _, err := b.Slice(0, 1); err != ErrDetached {
		t.Errorf("Slice err = %v, want ErrDetached", err)
	}
}

func TestValidateRange(t *testing.T) {
	b := MakeManaged(16)
	defer b.Release()

	cases := []struct {
		offset, length int
		want            bool
	}{
		{0, 16, true},
		{0, 17, false},
		{8, 8, true},
		{8, 9, false},
		{-1, 1, false},
		{1, -1, false},
	}

	for _, c := range cases {
		if got := b.ValidateRange(c.offset, c.length); got != c.want {
			t.Errorf("ValidateRange(%d, %d) = %v, want %v", c.offset, c.length, got, c.want)
		}
	}
}

func TestCopyAndCompare(t *testing.T) {
	src := MakeManaged(4)
	defer src.Release()
	src.Fill(4, 'a')

	dst := MakeManaged(4)
	defer dst.Release()

	n, err := Copy(dst, src, 4)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != 4 {
		t.Fatalf("Copy returned %d, want 4", n)
	}

	cmp, err := Compare(dst, src, 4)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if cmp != 0 {
		t.Errorf("Compare = %d, want 0", cmp)
	}
}

func TestVectorAdvance(t *testing.T) {
	a := MakeManaged(4)
	defer a.Release()
	b := MakeManaged(4)
	defer b.Release()

	v := &Vector{
		Entries: []Entry{
			{Buf: a, Length: 4, Flags: IsMemory},
			{Buf: b, Length: 4, Flags: IsMemory},
		},
	}

	if got := v.Remaining(); got != 8 {
		t.Fatalf("Remaining = %d, want 8", got)
	}

	if err := v.Advance(5); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if v.Index != 1 || v.Offset != 1 {
		t.Fatalf("cursor = (%d, %d), want (1, 1)", v.Index, v.Offset)
	}
	if got := v.Remaining(); got != 3 {
		t.Fatalf("Remaining after advance = %d, want 3", got)
	}

	if err := v.Advance(100); err == nil {
		t.Fatal("Advance past the end should fail")
	}
}
