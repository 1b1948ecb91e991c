package transit

import "transit-backend/internal/resource"

// BuildRegistry wires every transit resource into a registry. Descriptor
// validation runs at registration, so a misconfigured resource fails here,
// at startup.
func BuildRegistry(s Services) (*resource.Registry, error) {
	reg := resource.NewRegistry()
	for _, d := range []*resource.Descriptor{
		ZoneDescriptor(s),
		StopDescriptor(s),
		LineDescriptor(s),
		VehicleDescriptor(s),
		SettingDescriptor(s),
	} {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
