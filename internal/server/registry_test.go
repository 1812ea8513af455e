package server

import (
	"net"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a1, b1 := net.Pipe()
	a2, b2 := net.Pipe()
	defer b1.Close()
	defer b2.Close()

	e1 := r.Add(a1)
	e2 := r.Add(a2)
	if e1.ID() == e2.ID() || e1.ID() == "" {
		t.Fatal("ids must be unique")
	}
	e2.Served()
	e2.Served()
	e1.Served()

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].Seq != 1 || snap[1].Seq != 2 {
		t.Fatalf("snapshot not in accept order: %+v", snap)
	}
	if snap[1].Requests != 2 || snap[0].Remote != "pipe" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	r.Remove(e1)
	r.Remove(e1)
	if r.Len() != 1 || r.Accepted() != 2 || r.Served() != 3 {
		t.Fatalf("len=%d accepted=%d served=%d", r.Len(), r.Accepted(), r.Served())
	}

	r.CloseAll()
	if _, err := a2.Write([]byte("x")); err == nil {
		t.Fatal("CloseAll must close live connections")
	}
	if r.Add(nil) != nil {
		t.Fatal("Add after CloseAll must be rejected")
	}
}
