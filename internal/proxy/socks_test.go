package proxy

import "testing"

func TestNewClient(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Transport != nil || c.Timeout != Timeout {
		t.Fatalf("direct client = %+v", c)
	}

	c, err = NewClient("127.0.0.1:1080")
	if err != nil {
		t.Fatal(err)
	}
	if c.Transport == nil {
		t.Fatal("proxied client has no transport")
	}
}
