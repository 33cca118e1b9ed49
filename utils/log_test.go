package utils

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestZaplog(t *testing.T) {

	LogLevel = Log_info
	LogOutFileName = filepath.Join(t.TempDir(), "vs_log")
	InitLog()
	defer func() {
		LogOutFileName = ""
		ZapLogger = zap.NewNop()
	}()

	if ce := CanLogDebug("test1"); ce != nil {
		t.Log("debug entry should be filtered at info level")
		t.FailNow()
	}

	if ce := CanLogInfo("test2"); ce != nil {
		ce.Write(
			zap.Uint32("uid", 32),
			zap.Error(errors.New("asdfdsf")),
		)
	} else {
		t.Log("info entry should pass at info level")
		t.FailNow()
	}
}

func TestSaturatingInt64(t *testing.T) {
	if SaturatingInt64(5) != 5 {
		t.FailNow()
	}
	if SaturatingInt64(math.MaxUint64) != math.MaxInt64 {
		t.FailNow()
	}
	if SaturatingInt64(uint64(math.MaxInt64)+1) != math.MaxInt64 {
		t.FailNow()
	}
}

func TestErrInErr(t *testing.T) {
	e := ErrInErr{ErrDesc: "parse failed", ErrDetail: ErrInvalidData, Data: 3}
	if !errors.Is(e, ErrInvalidData) {
		t.FailNow()
	}
	if e.Error() != "parse failed : invalid data, Data: 3" {
		t.Log(e.Error())
		t.FailNow()
	}
}

func TestUUIDStr(t *testing.T) {
	u := GenerateUUID_v4()
	s := UUIDToStr(u[:])
	if len(s) != 36 || s[14] != '4' {
		t.Log(s)
		t.FailNow()
	}
}
