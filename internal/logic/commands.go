package logic

// Command identifier bytes. Upper and lower case are distinct commands.
const (
	CmdForward      byte = 'F'
	CmdBackward     byte = 'B'
	CmdLeft         byte = 'L'
	CmdRight        byte = 'R'
	CmdForwardLeft  byte = 'G'
	CmdForwardRight byte = 'H'
	CmdBackLeft     byte = 'I'
	CmdBackRight    byte = 'J'
	CmdStop         byte = 'X'
	CmdFrontLampOn  byte = 'U'
	CmdFrontLampOff byte = 'u'
	CmdBackLampOn   byte = 'V'
	CmdBackLampOff  byte = 'v'
	CmdBlinkOn      byte = 'W'
	CmdBlinkOff     byte = 'w'
	CmdFrontSpeed   byte = 'S'
	CmdBackSpeed    byte = 'T'
)

var commandNames = map[byte]string{
	CmdForward:      "forward",
	CmdBackward:     "backward",
	CmdLeft:         "left",
	CmdRight:        "right",
	CmdForwardLeft:  "forward-left",
	CmdForwardRight: "forward-right",
	CmdBackLeft:     "backward-left",
	CmdBackRight:    "backward-right",
	CmdStop:         "stop",
	CmdFrontLampOn:  "front-lamp-on",
	CmdFrontLampOff: "front-lamp-off",
	CmdBackLampOn:   "back-lamp-on",
	CmdBackLampOff:  "back-lamp-off",
	CmdBlinkOn:      "blink-on",
	CmdBlinkOff:     "blink-off",
	CmdFrontSpeed:   "front-speed",
	CmdBackSpeed:    "back-speed",
}

// CommandName returns a readable name for a command byte, or "" if the byte
// is not a recognized command.
func CommandName(code byte) string {
	return commandNames[code]
}

// NeedsParam reports whether the command carries a parameter byte.
func NeedsParam(code byte) bool {
	return code == CmdFrontSpeed || code == CmdBackSpeed
}

// ClampSpeed limits a requested speed to [SpeedMin, SpeedMax].
func ClampSpeed(v int) int {
	if v < SpeedMin {
		return SpeedMin
	}
	if v > SpeedMax {
		return SpeedMax
	}
	return v
}

// SplitUnits cuts a raw byte stream into command units: a speed command
// takes the following byte as its parameter, every other byte stands alone.
// A speed command at the very end of the stream is returned without its
// parameter and will be dropped by the interpreter.
func SplitUnits(stream []byte) [][]byte {
	var units [][]byte
	for i := 0; i < len(stream); i++ {
		if NeedsParam(stream[i]) && i+1 < len(stream) {
			units = append(units, []byte{stream[i], stream[i+1]})
			i++
			continue
		}
		units = append(units, []byte{stream[i]})
	}
	return units
}
