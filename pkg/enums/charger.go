package enums

// ChargerStatus is the live operational state of a single charger.
type ChargerStatus string

const (
	ChargerStatusAvailable   ChargerStatus = "available"
	ChargerStatusOccupied    ChargerStatus = "occupied"
	ChargerStatusOutOfOrder  ChargerStatus = "out_of_order"
	ChargerStatusMaintenance ChargerStatus = "maintenance"
)

var validChargerStatuses = []ChargerStatus{
	ChargerStatusAvailable,
	ChargerStatusOccupied,
	ChargerStatusOutOfOrder,
	ChargerStatusMaintenance,
}

func (c ChargerStatus) IsValid() bool { return isOneOf(c, validChargerStatuses) }

func ParseChargerStatus(value string) (ChargerStatus, error) {
	return parseOneOf("charger status", value, validChargerStatuses)
}

// IsOperatorSettable reports whether operators may move a charger into this status directly.
// Occupied is only reachable through a reservation.
func (c ChargerStatus) IsOperatorSettable() bool {
	return c != ChargerStatusOccupied && c.IsValid()
}

// ConnectorType identifies the plug standard of a charger.
type ConnectorType string

const (
	ConnectorType1             ConnectorType = "type1"
	ConnectorType2             ConnectorType = "type2"
	ConnectorCCS               ConnectorType = "ccs"
	ConnectorCHAdeMO           ConnectorType = "chademo"
	ConnectorTeslaSupercharger ConnectorType = "tesla_supercharger"
)

var validConnectorTypes = []ConnectorType{
	ConnectorType1,
	ConnectorType2,
	ConnectorCCS,
	ConnectorCHAdeMO,
	ConnectorTeslaSupercharger,
}

func (c ConnectorType) IsValid() bool { return isOneOf(c, validConnectorTypes) }

func ParseConnectorType(value string) (ConnectorType, error) {
	return parseOneOf("connector type", value, validConnectorTypes)
}
