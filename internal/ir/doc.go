// Package ir provides the intermediate representation of suspend Programs.
//
// A Program is a table of register operations split into two legs: the
// suspend-leg runs before the hardware halts and the resume-leg runs after the
// wake interrupt releases it. Programs are plain data. They are built once per
// (platform, sleep depth) pair and are never mutated while a sleep
// transaction is in flight.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Instructions are immutable values; Build copies its inputs
//   - The packed form is the only serialization shared with firmware
//   - Journal records are ordered by logical seq, never by wall-clock time
package ir
