package core

import (
	"errors"
	"testing"
)

func TestResult_Ok(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() {
		t.Fatal("Ok result should be ok")
	}
	if r.Value() != 42 {
		t.Errorf("Value() = %d, want 42", r.Value())
	}
	if r.Failure() != nil {
		t.Error("Failure() should be nil")
	}
	if r.Err() != nil {
		t.Error("Err() should be a nil interface")
	}
	v, err := r.Get()
	if v != 42 || err != nil {
		t.Errorf("Get() = (%d, %v)", v, err)
	}
}

func TestResult_Fail(t *testing.T) {
	f := Unknown("boom")
	r := Fail[string](f)
	if r.IsOk() {
		t.Fatal("failed result should not be ok")
	}
	if r.Failure() != f {
		t.Error("Failure() should return the wrapped failure")
	}
	if _, err := r.Get(); !errors.Is(err, ErrUnknown) {
		t.Errorf("Get() err = %v, want unknown failure", err)
	}
}

func TestResult_FailNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Fail(nil) should panic")
		}
	}()
	Fail[int](nil)
}

func TestDone(t *testing.T) {
	if !Done().IsOk() {
		t.Error("Done() should be ok")
	}
}
