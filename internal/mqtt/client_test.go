package mqtt

import (
	"testing"

	"github.com/berfenger/tigo2mqtt/internal/config"
	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	cfg := config.Config{MQTT: config.MQTTConfig{Host: "localhost", Port: 1883, BaseTopic: "tigo"}}
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestButtonCommandParse(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	r := buttonCommandExtractor("loremTopic")
	cmd, err := parseButtonCommand(r, "loremTopic/button/reset_energy/press", []byte("PRESS"))
	require.NoError(err)

	assert.Equal("reset_energy", cmd.DeviceId, "button extract")
	assert.Equal(MQTT_COMMAND_PRESS, cmd.Command)
	assert.Equal("PRESS", cmd.Payload)
}

func TestButtonCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	r := buttonCommandExtractor("loremTopic")
	for _, topic := range []string{
		"loremTopic/button/reset_energy/state",
		"loremTopic/sensor/total_power/state",
		"otherTopic/button/reset_energy/press",
		"prefix/loremTopic/button/reset_energy/press",
	} {
		_, err := parseButtonCommand(r, topic, nil)
		assert.Error(err, topic)
	}
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	assert.Equal("tigo/bridge/state", c.BridgeStateTopic())
	assert.Equal("tigo/sensor/total_power/state", c.SensorStateTopic(domain.SENSOR_ID_TOTAL_POWER))
	assert.Equal("tigo/binary_sensor/night_mode/state", c.BinarySensorStateTopic(domain.SENSOR_ID_NIGHT_MODE))
	assert.Equal("tigo/button/reset_energy/press", c.ButtonCommandTopic(domain.BUTTON_ID_RESET_ENERGY))
	assert.Equal("tigo/button/+/press", c.commandTopic())
	assert.Equal(DEFAULT_HA_DISCOVERY_TOPIC, c.DiscoveryPrefix())
}

func TestDiscoveryMessages(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	bridge := domain.BridgeDevice("tigo")

	sensors := domain.AggregateSensors(bridge)
	msg := GenericSensorToHADiscoveryMessage(c, sensors[0])
	assert.Equal("tigo/sensor/total_power/state", msg.StateTopic)
	assert.Equal("W", msg.UnitOfMeasurement)
	assert.Equal("tigo/bridge/state", msg.AvTopic)
	assert.Equal([]string{bridge.Id}, msg.Device.Id)

	state := GenericSensorToHADiscoveryMessage(c, domain.BridgeSensors(bridge)[0])
	assert.Equal(MQTT_PAYLOAD_ONLINE, state.PayloadOn)
	assert.Equal("tigo/bridge/state", state.StateTopic)

	buttons := domain.BridgeButtons(bridge)
	btn := GenericButtonToHADiscoveryMessage(c, buttons[0])
	assert.Equal("tigo/button/reset_node_table/press", btn.CommandTopic)
	assert.Equal(MQTT_PAYLOAD_PRESS, btn.PayloadPress)
	assert.Equal("homeassistant/button/"+bridge.Id+"/reset_node_table/config", HADiscoveryButtonTopic(c.DiscoveryPrefix(), buttons[0]))
}
