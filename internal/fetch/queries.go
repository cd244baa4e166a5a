package fetch

// GraphQL operation documents against the backend's strawberry schema.
// Field names are the schema's camelCase forms; normalize.go maps the
// responses back onto the REST wire shapes.

const queryVoltageReadings = `
query VoltageReadings($limit: Int!, $hours: Int!, $sensorId: String) {
  voltageReadings(options: {limit: $limit, sensorId: $sensorId, timeRange: {hours: $hours}}) {
    id
    sensorId
    location
    voltageL1
    voltageL2
    voltageL3
    frequency
    timestamp
  }
}`

const queryPowerQuality = `
query PowerQuality($limit: Int!, $hours: Int!, $sensorId: String) {
  powerQuality(options: {limit: $limit, sensorId: $sensorId, timeRange: {hours: $hours}}) {
    id
    sensorId
    location
    thdVoltage
    thdCurrent
    powerFactor
    voltageImbalance
    flickerSeverity
    timestamp
  }
}`

const queryFaultEvents = `
query FaultEvents($limit: Int!, $hours: Int!, $severity: String) {
  faultEvents(options: {limit: $limit, severity: $severity, timeRange: {hours: $hours}}) {
    id
    eventId
    severity
    eventType
    location
    timestamp
    durationMs
    resolved
    resolvedAt
  }
}`

const querySensorStats = `
query SensorStats {
  sensorStats {
    totalSensors
    activeSensors
    offlineSensors
    faultCount24h
    violationCount24h
    avgVoltage
    avgPowerFactor
    minVoltage
    maxVoltage
  }
}`

const mutationIngestVoltage = `
mutation IngestVoltageReading($reading: VoltageReadingInput!) {
  ingestVoltageReading(reading: $reading) {
    success
    message
    id
  }
}`

const mutationIngestPowerQuality = `
mutation IngestPowerQuality($data: PowerQualityInput!) {
  ingestPowerQuality(data: $data) {
    success
    message
    id
  }
}`

const mutationCreateFault = `
mutation CreateFaultEvent($event: FaultEventInput!) {
  createFaultEvent(event: $event) {
    success
    message
    id
  }
}`
