package rtlsdr

// tunerGainTable returns the hardcoded tenths-of-a-dB gain steps for a
// tuner chipset. Hardcoding these (rather than querying
// rtlsdr_get_tuner_gains) lets the handshake report a gain count before
// any gain-setting call is made.
func tunerGainTable(tuner Tuner) []int {
	switch tuner {
	case TunerE4000:
		return []int{-10, 15, 40, 65, 90, 115, 140, 165, 190, 215, 240, 290,
			340, 420}
	case TunerFC0012:
		return []int{-99, -40, 71, 179, 192}
	case TunerFC0013:
		return []int{-99, -73, -65, -63, -60, -58, -54, 58, 61, 63, 65, 67, 68,
			70, 71, 179, 181, 182, 184, 186, 188, 191, 197}
	case TunerFC2580:
		return []int{0}
	case TunerR820T, TunerR828D:
		return []int{0, 9, 14, 27, 37, 77, 87, 125, 144, 157, 166, 197, 207,
			229, 254, 280, 297, 328, 338, 364, 372, 386, 402, 421, 434, 439,
			445, 480, 496}
	default:
		return []int{0}
	}
}

// nearestGain snaps target (tenths of a dB) to the closest entry in
// table.
func nearestGain(table []int, target int) int {
	var (
		step         int
		stepDistance = -1
	)
	for _, gain := range table {
		distance := target - gain
		if distance < 0 {
			distance = -distance
		}
		if stepDistance < 0 || distance < stepDistance {
			stepDistance = distance
			step = gain
		}
	}
	return step
}
