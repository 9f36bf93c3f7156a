package types

// PermissionType names a custom (host-level) capability gate. The string
// values are the names used in manifests and bridge payloads.
type PermissionType string

const (
	PermissionUserName       PermissionType = "rakuten.miniapp.user.USER_NAME"
	PermissionProfilePhoto   PermissionType = "rakuten.miniapp.user.PROFILE_PHOTO"
	PermissionContactsList   PermissionType = "rakuten.miniapp.user.CONTACT_LIST"
	PermissionDeviceLocation PermissionType = "rakuten.miniapp.device.LOCATION"
)

// PermissionTypes returns every supported custom permission type in the
// order records are seeded and reported.
func PermissionTypes() []PermissionType {
	return []PermissionType{
		PermissionUserName,
		PermissionProfilePhoto,
		PermissionContactsList,
		PermissionDeviceLocation,
	}
}

// ParsePermissionType reports whether name is a supported permission type.
func ParsePermissionType(name string) (PermissionType, bool) {
	for _, t := range PermissionTypes() {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

// Title is the human readable label shown in permission prompts.
func (t PermissionType) Title() string {
	switch t {
	case PermissionUserName:
		return "User Name"
	case PermissionProfilePhoto:
		return "Profile Photo"
	case PermissionContactsList:
		return "Contacts List"
	case PermissionDeviceLocation:
		return "Location"
	default:
		return string(t)
	}
}

// DevicePermissionType names an OS-level permission a mini-app can request
// through requestPermission.
type DevicePermissionType string

const (
	DevicePermissionLocation DevicePermissionType = "location"
)

// ParseDevicePermissionType reports whether name is a supported device permission.
func ParseDevicePermissionType(name string) (DevicePermissionType, bool) {
	if DevicePermissionType(name) == DevicePermissionLocation {
		return DevicePermissionLocation, true
	}
	return "", false
}

// PermissionType returns the record type that gates the device permission.
func (d DevicePermissionType) PermissionType() PermissionType {
	return PermissionDeviceLocation
}

// GrantStatus is the field of record for a permission.
type GrantStatus string

const (
	StatusAllowed       GrantStatus = "ALLOWED"
	StatusDenied        GrantStatus = "DENIED"
	StatusNotDetermined GrantStatus = "NOT_DETERMINED"
	StatusRestricted    GrantStatus = "RESTRICTED"
)

// Valid reports whether s is one of the known statuses.
func (s GrantStatus) Valid() bool {
	switch s {
	case StatusAllowed, StatusDenied, StatusNotDetermined, StatusRestricted:
		return true
	}
	return false
}

// PermissionDeclaration is a permission a manifest asks for, with the reason
// shown to the user.
type PermissionDeclaration struct {
	Type        PermissionType `json:"name"`
	Description string         `json:"reason,omitempty"`
	// Required is set on declarations shown in a prompt when the manifest
	// lists the type as required.
	Required bool `json:"required,omitempty"`
}

// PermissionRecord is the persisted grant for one permission type.
type PermissionRecord struct {
	Type        PermissionType `json:"name"`
	Status      GrantStatus    `json:"status"`
	Description string         `json:"description,omitempty"`
}

// DefaultPermissionRecords is the seed for a mini-app that has no stored
// records yet: every supported type, denied.
func DefaultPermissionRecords() []PermissionRecord {
	types := PermissionTypes()
	records := make([]PermissionRecord, len(types))
	for i, t := range types {
		records[i] = PermissionRecord{Type: t, Status: StatusDenied}
	}
	return records
}

// FindRecord returns the record for t, if present.
func FindRecord(records []PermissionRecord, t PermissionType) (PermissionRecord, bool) {
	for _, r := range records {
		if r.Type == t {
			return r, true
		}
	}
	return PermissionRecord{}, false
}
