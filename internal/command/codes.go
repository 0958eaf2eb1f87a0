package command

// Command codes form a closed set: the first character of each control
// line. The rest of the line is a numeric argument where noted. Digits
// 1-9 drive the transport, lowercase/uppercase letter pairs are on/off
// toggles. Unknown codes are logged and ignored.
const (
	CodeNewImage byte = 'i' // request one image (mode decides the path)

	// Initial settings.
	CodeZoom byte = 'z' // int
	CodeRoiX byte = 'x' // int
	CodeRoiY byte = 'y' // int

	CodeLightOn  byte = 'l'
	CodeLightOff byte = 'L'

	CodePreviewOn  byte = 'p'
	CodePreviewOff byte = 'P'

	// Transport motion, keypad order: << < stop > >>.
	CodeMotorFastRev byte = '1'
	CodeMotorRevOne  byte = '2'
	CodeMotorStop    byte = '3'
	CodeMotorFwdOne  byte = '4'
	CodeMotorFastFwd byte = '5'

	// Sensor controls.
	CodeAnalogueGain byte = 'g' // float
	CodeExpComp      byte = 'v' // float, EV compensation
	CodeAwbMode      byte = 'w' // int
	CodeGainBlue     byte = 'B' // float
	CodeGainRed      byte = 'R' // float
	CodeBrightness   byte = 'b' // float
	CodeContrast     byte = 'c' // float
	CodeSaturation   byte = 's' // float

	CodeQuit byte = 'q'

	// Capture.
	CodeBracketShots byte = 'n' // int, shots per bracket
	CodeBracketStops byte = 'N' // float, stop range
	CodeTestPhoto    byte = 't'
	CodeAutoExpOn    byte = 'a'
	CodeAutoExpOff   byte = 'A'
	CodeFixExposure  byte = 'e' // float, milliseconds
	CodeFrameAckOn   byte = 'u' // enable advance acknowledgements
	CodeFrameAckOff  byte = 'U'
	CodeMotorWake    byte = 'm'
	CodeMotorSleep   byte = 'M'
	CodeFrameRev     byte = '6' // int, frames to reverse (default 1)
	CodeFrameAdv     byte = '7' // int, frames to advance (default 1)
	CodeStopCapture  byte = '8'
	CodeStartCapture byte = '9'

	// Advanced settings.
	CodeVFlipOn        byte = 'd'
	CodeVFlipOff       byte = 'D'
	CodeHFlipOn        byte = 'h'
	CodeHFlipOff       byte = 'H'
	CodeConstraintMode byte = 'C' // int
	CodeExposureMode   byte = 'E' // int
	CodeMeteringMode   byte = 'G' // int
	CodeResolution     byte = 'r' // int, resolution index
	CodeSharpness      byte = 'S' // float
	CodeSendStopOn     byte = 'k' // enable motor stop notices
)
