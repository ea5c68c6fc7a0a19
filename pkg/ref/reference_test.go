package ref

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseReferenceRoundTrip(t *testing.T) {
	for _, s := range []string{"a", "macro.out", "micro[3].in[2]", "a.b[0][12].c", "_x9"} {
		r, err := ParseReference(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if r.String() != s {
			t.Fatalf("round trip %q -> %q", s, r.String())
		}
	}
}

func TestParseReferenceRejects(t *testing.T) {
	for _, s := range []string{"", "[1]", "a..b", "a.", ".a", "a[", "a[-1]", "a[x]", "1a", "a.[2]", "a]b", "a b"} {
		_, err := ParseReference(s)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("parse %q: expected ConfigError, got %v", s, err)
		}
	}
}

func TestReferenceIsComparable(t *testing.T) {
	a := MustParse("k[1].p")
	b := MustParse("k").AppendIndex(1).AppendName("p")
	if a != b {
		t.Fatalf("%v != %v", a, b)
	}
	m := map[Reference]int{a: 1}
	if m[b] != 1 {
		t.Fatal("map lookup by equal reference failed")
	}
}

func TestReferenceParts(t *testing.T) {
	r := MustParse("k[1][2].p")
	want := []Part{NamePart("k"), IndexPart(1), IndexPart(2), NamePart("p")}
	if got := r.Parts(); !reflect.DeepEqual(got, want) {
		t.Fatalf("parts %v, want %v", got, want)
	}
	if r.Len() != 4 {
		t.Fatalf("len %d", r.Len())
	}
	if got := r.Prefix(3).String(); got != "k[1][2]" {
		t.Fatalf("prefix %q", got)
	}
	last, ok := r.Last()
	if !ok || last.Identifier() != "p" {
		t.Fatalf("last %v %v", last, ok)
	}
	if got := MustParse("a.b").Concat(MustParse("c[4]")).String(); got != "a.b.c[4]" {
		t.Fatalf("concat %q", got)
	}
}

func TestSplitTrailingIndices(t *testing.T) {
	base, idx := MustParse("k[1].p[2][3]").SplitTrailingIndices()
	if base.String() != "k[1].p" || !reflect.DeepEqual(idx, []int{2, 3}) {
		t.Fatalf("split: %v %v", base, idx)
	}
	base, idx = MustParse("k.p").SplitTrailingIndices()
	if base.String() != "k.p" || idx != nil {
		t.Fatalf("split without indices: %v %v", base, idx)
	}
}

func TestNewReferenceStartsWithName(t *testing.T) {
	if _, err := NewReference(IndexPart(1)); err == nil {
		t.Fatal("expected error for leading index")
	}
	if _, err := NewReference(NamePart("a"), IndexPart(-1)); err == nil {
		t.Fatal("expected error for negative index")
	}
	r, err := NewReference(NamePart("a"), IndexPart(0), NamePart("b"))
	if err != nil || r.String() != "a[0].b" {
		t.Fatalf("got %v %v", r, err)
	}
}

func TestEndpoint(t *testing.T) {
	e := Endpoint{Kernel: MustParse("micro"), Index: []int{3}, Port: "in", Slot: []int{1}}
	if e.Ref().String() != "micro[3].in[1]" {
		t.Fatalf("ref %v", e.Ref())
	}
	if e.Instance().String() != "micro[3]" {
		t.Fatalf("instance %v", e.Instance())
	}
	bare := Endpoint{Kernel: MustParse("macro"), Port: "out"}
	if bare.String() != "macro.out" {
		t.Fatalf("bare %v", bare)
	}
}

func TestConduit(t *testing.T) {
	c, err := ParseConduit("macro.out -> sub.micro.in[2]")
	if err != nil {
		t.Fatal(err)
	}
	if c.SendingKernel().String() != "macro" || c.SendingPort() != "out" || c.SendingSlot() != nil {
		t.Fatalf("sender side %v %v %v", c.SendingKernel(), c.SendingPort(), c.SendingSlot())
	}
	if c.ReceivingKernel().String() != "sub.micro" || c.ReceivingPort() != "in" || !reflect.DeepEqual(c.ReceivingSlot(), []int{2}) {
		t.Fatalf("receiver side %v %v %v", c.ReceivingKernel(), c.ReceivingPort(), c.ReceivingSlot())
	}
	if c.String() != "macro.out -> sub.micro.in[2]" {
		t.Fatalf("string %q", c.String())
	}
}

func TestConduitRejects(t *testing.T) {
	for _, tc := range [][2]string{
		{"macro", "micro.in"},
		{"macro.out", "micro[1].in"},
		{"macro.out", "in[2]"},
	} {
		if _, err := NewConduit(tc[0], tc[1]); err == nil {
			t.Fatalf("expected error for %v", tc)
		}
	}
	if _, err := ParseConduit("macro.out micro.in"); err == nil {
		t.Fatal("expected error without arrow")
	}
}
