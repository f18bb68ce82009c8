package console

import "testing"

func newBuf() (*Console, *[]byte) {
	buf := &[]byte{}
	c := New(func(ch byte) { *buf = append(*buf, ch) })
	return c, buf
}

func TestPutCharTranslatesNewline(t *testing.T) {
	c, buf := newBuf()
	c.PutChar('\n')
	if string(*buf) != "\r\n" {
		t.Fatalf("PutChar('\\n') = %q, want %q", *buf, "\r\n")
	}
}

func TestPrintfDecimalAndHex(t *testing.T) {
	c, buf := newBuf()
	c.Printf("%d-%x", 42, 255)
	if string(*buf) != "42-ff" {
		t.Fatalf("got %q", *buf)
	}
}

func TestPrintfZeroPaddedWidth(t *testing.T) {
	c, buf := newBuf()
	c.Printf("%08x", 0xBEEF)
	if string(*buf) != "0000beef" {
		t.Fatalf("got %q", *buf)
	}
}

func TestPrintfLongLongPrefix(t *testing.T) {
	c, buf := newBuf()
	c.Printf("%llu", uint64(1)<<40)
	want := "1099511627776"
	if string(*buf) != want {
		t.Fatalf("got %q, want %q", *buf, want)
	}
}

func TestPrintfStringAndNull(t *testing.T) {
	c, buf := newBuf()
	c.Printf("%s", "hi")
	if string(*buf) != "hi" {
		t.Fatalf("got %q", *buf)
	}
	c2, buf2 := newBuf()
	c2.Printf("%s", "")
	if string(*buf2) != "(null)" {
		t.Fatalf("got %q", *buf2)
	}
}

func TestPrintfPointerAndPercent(t *testing.T) {
	c, buf := newBuf()
	c.Printf("%p %%", uintptr(0x1000))
	if string(*buf) != "0x1000 %" {
		t.Fatalf("got %q", *buf)
	}
}

func TestPrintfNegativeDecimal(t *testing.T) {
	c, buf := newBuf()
	c.Printf("%d", -7)
	if string(*buf) != "-7" {
		t.Fatalf("got %q", *buf)
	}
}

func TestPrintfZeroWithWidth(t *testing.T) {
	c, buf := newBuf()
	c.Printf("%4d", 0)
	if string(*buf) != "   0" {
		t.Fatalf("got %q", *buf)
	}
}
