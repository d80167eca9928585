// Package catalog holds the declarative database of known component
// specifications.
//
// A catalog is loaded once at startup from YAML and is read-only afterwards.
// Loading is strict: a malformed record stops the load with a *CatalogError
// instead of being tolerated at the point of use.
//
// # File Format
//
//	version: 1
//	capabilities: [digital, pull, pwm, hw-pwm]
//	affinity:
//	  indicator: [17, 18, 27, 22]
//	components:
//	  - id: LED
//	    tier: 1
//	    protocol: digital
//	    voltage: either
//	    family: indicator
//	    slots:
//	      - name: signal
//	        pins: 1
//	        capabilities: [digital]
//	  - id: TemperatureSensor_I2C
//	    tier: 3
//	    protocol: i2c
//	    voltage: 3v3
//	    slots:
//	      - name: bus
//	        bus: i2c
//	        address: 0x48
//
// A bus slot accepts at most one of address (fixed), addresses (set) or
// addressRange ([lo, hi]). Without any of them the allocator picks any free
// address slot on the bus.
//
// The embedded starter-kit catalog is available through [Default].
package catalog
