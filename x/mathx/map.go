package mathx

// MapClamped maps x linearly from [inLo,inHi] onto [outLo,outHi], clamping to
// the output range when x falls outside the input band. A degenerate input
// band returns outLo.
func MapClamped(x, inLo, inHi, outLo, outHi float32) float32 {
	if inHi == inLo {
		return outLo
	}
	t := (x - inLo) / (inHi - inLo)
	return Clamp(outLo+t*(outHi-outLo), outLo, outHi)
}
