package toothconv

import "fmt"

// Mode selects the label file formats written by the converter.
type Mode int

// The output modes.
const (
	ModeRaw Mode = iota + 1
	ModeYOLO
	ModeBoth
)

// ParseMode parses "raw", "yolo" or "both".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "raw":
		return ModeRaw, nil
	case "yolo":
		return ModeYOLO, nil
	case "both":
		return ModeBoth, nil
	}
	return 0, fmt.Errorf("unknown mode %q, want raw, yolo or both", s)
}

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeYOLO:
		return "yolo"
	case ModeBoth:
		return "both"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// formats returns the label formats written in mode m.
func (m Mode) formats() []labelFormat {
	switch m {
	case ModeRaw:
		return []labelFormat{rawFormat}
	case ModeYOLO:
		return []labelFormat{yoloFormat}
	case ModeBoth:
		return []labelFormat{rawFormat, yoloFormat}
	}
	return nil
}
