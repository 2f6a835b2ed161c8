/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/go-classfile/asm/trace"
)

// callSite mimics Jacobin's cfe() helper: every error constructed here
// carries the file/line of whichever codec function detected it, which is
// the only "stack trace" a caller of a decode/encode library needs.
func callSite() string {
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	fileName, fileLine := fn.FileLine(pc)
	return " (" + filepath.Base(fileName) + ":" + strconv.Itoa(fileLine) + ")"
}

// FormatError signals malformed input bytes: bad magic, truncated
// structure, a tag out of range. Raised at the ClassReader boundary and
// never retried.
type FormatError struct {
	Msg  string
	Site string
}

func (e *FormatError) Error() string { return "class format error: " + e.Msg + e.Site }

func newFormatError(msg string) error {
	err := &FormatError{Msg: msg, Site: callSite()}
	trace.Error(err.Error())
	return err
}

// PoolOverflow ("ClassTooLarge") signals the constant pool would exceed
// 65535 entries. Raised at addConstant time.
type PoolOverflow struct {
	ClassName string
	Site      string
}

func (e *PoolOverflow) Error() string {
	return fmt.Sprintf("class %s is too large: constant pool exceeds 65535 entries%s", e.ClassName, e.Site)
}

func newPoolOverflow(className string) error {
	err := &PoolOverflow{ClassName: className, Site: callSite()}
	trace.Error(err.Error())
	return err
}

// CodeOverflow ("MethodTooLarge") signals emitted method code exceeds
// 65535 bytes. Carries the class, method, descriptor, and length for a
// precise error message.
type CodeOverflow struct {
	ClassName  string
	MethodName string
	Descriptor string
	Length     int
	Site       string
}

func (e *CodeOverflow) Error() string {
	return fmt.Sprintf("method %s.%s%s is too large: code length %d exceeds 65535%s",
		e.ClassName, e.MethodName, e.Descriptor, e.Length, e.Site)
}

func newCodeOverflow(className, methodName, descriptor string, length int) error {
	err := &CodeOverflow{ClassName: className, MethodName: methodName, Descriptor: descriptor, Length: length, Site: callSite()}
	trace.Error(err.Error())
	return err
}

// UnsupportedVersion signals a visitor was asked to emit a feature not
// available at the class's configured major version (e.g. type
// annotations before the v52 floor).
type UnsupportedVersion struct {
	Feature      string
	MajorVersion int
	RequiredAt   int
	Site         string
}

func (e *UnsupportedVersion) Error() string {
	return fmt.Sprintf("%s requires class file major version >= %d, got %d%s",
		e.Feature, e.RequiredAt, e.MajorVersion, e.Site)
}

func newUnsupportedVersion(feature string, majorVersion, requiredAt int) error {
	err := &UnsupportedVersion{Feature: feature, MajorVersion: majorVersion, RequiredAt: requiredAt, Site: callSite()}
	trace.Error(err.Error())
	return err
}

// InvariantViolation signals an internal precondition the caller broke,
// e.g. an unresolved Label reached toByteArray.
type InvariantViolation struct {
	Msg  string
	Site string
}

func (e *InvariantViolation) Error() string { return "invariant violation: " + e.Msg + e.Site }

func newInvariantViolation(msg string) error {
	err := &InvariantViolation{Msg: msg, Site: callSite()}
	trace.Error(err.Error())
	return err
}

// UtfTooLong signals the modified-UTF-8 encoding of a single string
// exceeds 65535 bytes.
type UtfTooLong struct {
	Length int
	Site   string
}

func (e *UtfTooLong) Error() string {
	return fmt.Sprintf("UTF-8 string encodes to %d bytes, exceeds 65535%s", e.Length, e.Site)
}

func newUtfTooLong(length int) error {
	err := &UtfTooLong{Length: length, Site: callSite()}
	trace.Error(err.Error())
	return err
}
