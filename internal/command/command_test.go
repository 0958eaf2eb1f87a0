package command

import (
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		line     string
		wantCode byte
		wantArg  string
		wantOK   bool
	}{
		{"i", 'i', "", true},
		{"e25\r\n", 'e', "25", true},
		{"g 2.5", 'g', "2.5", true},
		{"7\n", '7', "", true},
		{"n3", 'n', "3", true},
		{"", 0, "", false},
		{"\r\n", 0, "", false},
	}
	for _, c := range cases {
		cmd, ok := Parse(c.line)
		if ok != c.wantOK {
			t.Errorf("Parse(%q) ok = %v, want %v", c.line, ok, c.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if cmd.Code != c.wantCode || cmd.Arg != c.wantArg {
			t.Errorf("Parse(%q) = (%c, %q), want (%c, %q)",
				c.line, cmd.Code, cmd.Arg, c.wantCode, c.wantArg)
		}
	}
}

func TestCommandInt(t *testing.T) {
	cmd, _ := Parse("e25")
	v, err := cmd.Int()
	if err != nil || v != 25 {
		t.Errorf("Int() = (%d, %v), want (25, nil)", v, err)
	}

	cmd, _ = Parse("ebogus")
	if _, err := cmd.Int(); err == nil {
		t.Error("Int() accepted a non-numeric argument")
	}
}

func TestCommandIntDefault(t *testing.T) {
	cmd, _ := Parse("7")
	v, err := cmd.IntDefault(1)
	if err != nil || v != 1 {
		t.Errorf("IntDefault(1) = (%d, %v), want (1, nil)", v, err)
	}

	cmd, _ = Parse("7 5")
	v, err = cmd.IntDefault(1)
	if err != nil || v != 5 {
		t.Errorf("IntDefault(1) = (%d, %v), want (5, nil)", v, err)
	}
}

func TestCommandFloat(t *testing.T) {
	cmd, _ := Parse("g2.5")
	v, err := cmd.Float()
	if err != nil || v != 2.5 {
		t.Errorf("Float() = (%v, %v), want (2.5, nil)", v, err)
	}
}
