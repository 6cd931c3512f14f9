//go:build !linux

package main

const audioHint = "Check that this terminal has microphone permission in system settings."
