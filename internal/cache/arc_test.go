package cache

import "testing"

func TestLRU(t *testing.T) {
	t.Parallel()

	c, err := NewLRU(2)
	if err != nil {
		t.Fatal(err)
	}

	c.Add("rooms/ABCD@1", []byte("a"))
	c.Add("rooms/ABCD@2", []byte("b"))

	v, ok := c.Get("rooms/ABCD@2")
	if !ok || string(v.([]byte)) != "b" {
		t.Fatalf("expected cached value, got %v %v", v, ok)
	}

	c.Add("rooms/ABCD@3", []byte("c"))
	if c.Len() != 2 {
		t.Errorf("expected len 2 got %d", c.Len())
	}

	c.Delete("rooms/ABCD@3")
	if _, ok := c.Get("rooms/ABCD@3"); ok {
		t.Error("expected deleted key to be absent")
	}
}

func TestNewLRUInvalidSize(t *testing.T) {
	t.Parallel()

	if _, err := NewLRU(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}
