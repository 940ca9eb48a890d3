package airspy

// attenuatorStepCount is the number of 6 dB attenuator steps the Airspy
// HF's front end exposes (0 dB through 48 dB).
const attenuatorStepCount = 9

// nearestAttenuatorStep converts a requested gain in whole dB into the
// attenuator step index airspyhf_set_hf_att expects. Gain and
// attenuation move in opposite directions: index 0 is 0 dB of
// attenuation (maximum gain), index 8 is 48 dB of attenuation (minimum
// gain).
func nearestAttenuatorStep(gainDB int) uint8 {
	atten := 48 - gainDB
	if atten < 0 {
		atten = 0
	}
	if atten > 48 {
		atten = 48
	}
	step := (atten + 3) / 6
	if step > attenuatorStepCount-1 {
		step = attenuatorStepCount - 1
	}
	return uint8(step)
}
