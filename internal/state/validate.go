package state

import "regexp"

// PlaneTypes is the fixed set of vehicle types a client may authenticate
// with or stream in a position update.
var PlaneTypes = []string{
	"C-400", "HC-400", "MC-400", "RL-42", "RL-72", "E-42", "XV-40", "PV-40",
	"InPerson", "4x4", "APC", "FuelTruck", "8x8", "Flatbed", "None",
}

var planeTypeSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(PlaneTypes))
	for _, pt := range PlaneTypes {
		set[pt] = struct{}{}
	}
	return set
}()

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	vector3Pattern  = regexp.MustCompile(`^-?\d+(\.\d+)?,-?\d+(\.\d+)?,-?\d+(\.\d+)?$`)
)

// ValidUsername reports whether a username is acceptable at authentication.
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// ValidVector3 reports whether a string is a comma-joined triple of decimal
// numbers.
func ValidVector3(v string) bool {
	return vector3Pattern.MatchString(v)
}

// ValidPlaneType reports whether a vehicle type belongs to the fixed set.
func ValidPlaneType(planeType string) bool {
	_, ok := planeTypeSet[planeType]
	return ok
}

// defaultStateTemplate returns a fresh copy of the persistent vehicle state
// every player starts with. The key set is frozen at join: updates may only
// replace values of existing keys.
func defaultStateTemplate() map[string]interface{} {
	return map[string]interface{}{
		"Eng1":      true,
		"Eng2":      true,
		"Eng3":      true,
		"Eng4":      true,
		"GearDown":  true,
		"SigL":      true,
		"MainL":     false,
		"VTOLAngle": float64(0),
		"PV40Color": "0,0,0",
		"LiveryId":  float64(-1),
	}
}
