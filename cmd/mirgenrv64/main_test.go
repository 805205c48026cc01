package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

func TestCollectUsedHardRegsFindsEveryHardRegOperand(t *testing.T) {
	f := &ir.Func{Name: "f"}
	f.Append(ir.NewInsn(ir.OpADD,
		ir.HardRegOp(ir.TI64, ir.A0),
		ir.HardRegOp(ir.TI64, ir.A0),
		ir.HardRegOp(ir.TI64, ir.S1),
	))
	f.Append(ir.NewInsn(ir.OpRET, ir.HardRegOp(ir.TI64, ir.A0)))

	set := collectUsedHardRegs(f)
	if !set.Has(ir.A0) || !set.Has(ir.S1) {
		t.Fatalf("expected a0 and s1 to be recorded as used, got %b", set)
	}
	if set.Has(ir.S2) {
		t.Fatalf("s2 was never referenced, should not be marked used")
	}
}

func TestRunTranslateWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	src := "func add(i64, i64) i64\n  add a0, a0, a1\n  ret a0\nend\n"
	irPath := filepath.Join(dir, "add.ir")
	if err := os.WriteFile(irPath, []byte(src), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	outPath := filepath.Join(dir, "add.bin")

	if err := runTranslate(irPath, outPath, false); err != nil {
		t.Fatalf("runTranslate: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading generated output: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected a non-empty code buffer to be written")
	}
}

func TestRunTranslateRejectsMissingFile(t *testing.T) {
	if err := runTranslate(filepath.Join(t.TempDir(), "missing.ir"), "", false); err == nil {
		t.Fatal("expected an error for a nonexistent IR fixture path")
	}
}

func TestRunDisasmRejectsMissingFile(t *testing.T) {
	if err := runDisasm(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatal("expected an error for a nonexistent code file")
	}
}

func TestPrintHexDumpFormatsRows(t *testing.T) {
	var sb strings.Builder
	code := make([]byte, 20)
	for i := range code {
		code[i] = byte(i)
	}
	printHexDump(&sb, code)
	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2 (16 bytes then 4)", len(lines))
	}
}
