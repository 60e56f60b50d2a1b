package entity

// VehicleType classifies the vehicle assigned to a trip or dispatch group.
type VehicleType string

const (
	VehicleSmallCar VehicleType = "SMALL_CAR"
	VehicleLargeCar VehicleType = "LARGE_CAR"
	VehicleVan      VehicleType = "VAN"
)

// Passenger capacity per vehicle type, excluding the driver.
var vehicleCapacity = map[VehicleType]int{
	VehicleSmallCar: 3,
	VehicleLargeCar: 6,
	VehicleVan:      15,
}

// sizedAscending lists vehicle types from smallest to largest capacity.
var sizedAscending = []VehicleType{VehicleSmallCar, VehicleLargeCar, VehicleVan}

// Capacity returns the passenger capacity of the vehicle type, or 0 for an
// unknown type.
func (v VehicleType) Capacity() int {
	return vehicleCapacity[v]
}

// IsValid reports whether the vehicle type is a known type.
func (v VehicleType) IsValid() bool {
	_, ok := vehicleCapacity[v]
	return ok
}

// MaxVehicleCapacity is the passenger capacity of the largest vehicle type.
func MaxVehicleCapacity() int {
	return vehicleCapacity[VehicleVan]
}

// VehicleFor returns the smallest vehicle type that can hold the given
// passenger count. The second result is false when no vehicle is large
// enough.
func VehicleFor(passengers int) (VehicleType, bool) {
	for _, v := range sizedAscending {
		if vehicleCapacity[v] >= passengers {
			return v, true
		}
	}
	return "", false
}
