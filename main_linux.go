//go:build linux

package main

const audioHint = "Is PulseAudio or PipeWire running? Try `pactl info`."
