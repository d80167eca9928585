package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinwise/pinwise-go/pkg/board"
	"github.com/pinwise/pinwise-go/pkg/catalog"
	"github.com/pinwise/pinwise-go/pkg/project"
)

func accepted(t *testing.T, c *catalog.Catalog, specID string, claims ...project.Claim) *project.Instance {
	t.Helper()
	spec, err := c.Lookup(specID)
	require.NoError(t, err)
	inst := project.NewInstance(spec)
	inst.State = project.StateAccepted
	inst.Claims = claims
	return inst
}

func pin(n int, slot string) project.Claim {
	return project.Claim{Unit: board.PinUnit(n), Mode: project.Exclusive, Slot: slot}
}

func sharedPin(n int, slot string) project.Claim {
	return project.Claim{Unit: board.PinUnit(n), Mode: project.Shared, Slot: slot}
}

func addr(bus string, a catalog.Address, slot string) project.Claim {
	return project.Claim{Unit: board.AddressUnit(bus, a), Mode: project.Exclusive, Slot: slot}
}

func TestGenerate(t *testing.T) {
	c, err := catalog.Default()
	require.NoError(t, err)

	p := project.New("demo")
	p.Append(accepted(t, c, "LED", pin(17, "signal")))
	p.Append(accepted(t, c, "LED", pin(27, "signal")))
	p.Append(accepted(t, c, "TemperatureSensor_I2C",
		sharedPin(2, "bus"), sharedPin(3, "bus"), addr("i2c1", 0x48, "bus")))
	p.Append(accepted(t, c, "LCD1602",
		sharedPin(2, "bus"), sharedPin(3, "bus"), addr("i2c1", 0x27, "bus")))

	rejected := accepted(t, c, "Buzzer", pin(18, "signal"))
	rejected.State = project.StateRejected
	p.Append(rejected)

	code, err := New().Generate(p)
	require.NoError(t, err)

	for _, want := range []string{
		"# demo: pin numbers use BCM numbering.\n",
		"from gpiozero import LED\nimport smbus2\nfrom LCD1602 import CharLCD1602\nimport time\n",
		"# LED on gpio17\nled = LED(17)\n",
		"# LED on gpio27\nled_2 = LED(27)\n",
		"# TemperatureSensor_I2C on i2c1/0x48\ntemperature_sensor_i2c = smbus2.SMBus(1)\n",
		"lcd1602 = CharLCD1602()\nlcd1602.init_lcd(addr=0x27)\n",
		"        while True:\n            led.toggle()\n            led_2.toggle()\n" +
			"            raw = temperature_sensor_i2c.read_word_data(0x48, 0x00)\n" +
			`            lcd1602.write(0, 0, "hello")` + "\n            time.sleep(0.5)\n",
		"    finally:\n        led.close()\n        led_2.close()\n        temperature_sensor_i2c.close()\n        lcd1602.clear()\n",
		"if __name__ == \"__main__\":\n    main()\n",
	} {
		assert.Contains(t, code, want)
	}
	assert.NotContains(t, code, "Buzzer", "only accepted instances are rendered")
	assert.Equal(t, 1, strings.Count(code, "from gpiozero import LED"), "imports are deduplicated")
}

func TestGenerateEmptyProject(t *testing.T) {
	code, err := New().Generate(project.New(""))
	require.NoError(t, err)
	assert.Contains(t, code, "# pin numbers use BCM numbering.\nimport time\n")
	assert.Contains(t, code, "def main():")
}

func TestGenerateMissingClaim(t *testing.T) {
	c, err := catalog.Default()
	require.NoError(t, err)

	p := project.New("")
	p.Append(accepted(t, c, "LED"))

	_, err = New().Generate(p)
	require.ErrorIs(t, err, ErrMissingClaim)
	assert.Contains(t, err.Error(), `LED init snippet`)
}

func TestGenerateUnknownField(t *testing.T) {
	c, err := catalog.Load([]byte(`
capabilities: [digital]
components:
  - id: Widget
    tier: 1
    protocol: digital
    voltage: either
    slots: [{name: signal, pins: 1, capabilities: [digital]}]
    code: {init: '{{.Var}} = Widget({{.Port}})'}
`))
	require.NoError(t, err)

	p := project.New("")
	p.Append(accepted(t, c, "Widget", pin(5, "signal")))
	_, err = New().Generate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Widget init snippet")
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"LED":                   "led",
		"RGBLED":                "rgbled",
		"PIRSensor":             "pir_sensor",
		"TemperatureSensor_I2C": "temperature_sensor_i2c",
		"DS18B20":               "ds18b20",
		"LEDMatrix":             "led_matrix",
		"hc-05 bluetooth":       "hc_05_bluetooth",
		"1wire":                 "part_1wire",
		"--":                    "part",
	}
	for in, want := range tests {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "    a\n\n    b", indent(4, "a\n\nb\n"))
}
