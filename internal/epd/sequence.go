package epd

import "time"

// powerOnSettle is the pause between power-on and the first busy poll.
const powerOnSettle = 50 * time.Millisecond

// controller is the narrow surface the command sequences are written
// against. The driver implements it over a Bus and BusySync; tests record it.
type controller interface {
	sendCommand(cmd byte)
	sendData(data ...byte)
	waitReady()
	delay(d time.Duration)
	detectBusy()
	refineBusy()
}

// plane is one full bit-plane transfer preceded by its command.
type plane struct {
	cmd  byte
	data []byte
}

// configurePanel runs power, panel and resolution setup, powers the
// controller on and sets VCOM. The busy polarity is guessed just before the
// first power-on and refined once the power-on wait has returned, when the
// line should be back at its idle level.
func configurePanel(ctrl controller, cfg *PanelConfig, resolution []byte) {
	ctrl.detectBusy()

	ctrl.sendCommand(powerSetting)
	ctrl.sendData(cfg.Power[:]...)

	ctrl.sendCommand(panelSetting)
	ctrl.sendData(cfg.Panel[:]...)

	ctrl.sendCommand(resolutionSetting)
	ctrl.sendData(resolution...)

	ctrl.sendCommand(powerOn)
	ctrl.delay(powerOnSettle)
	ctrl.waitReady()
	ctrl.refineBusy()

	ctrl.sendCommand(vcomDataInterval)
	ctrl.sendData(cfg.VCOM)
}

// pushPlanes transfers two full planes in the given order.
func pushPlanes(ctrl controller, first, second plane) {
	for _, p := range []plane{first, second} {
		ctrl.sendCommand(p.cmd)
		ctrl.sendData(p.data...)
	}
}

func triggerRefresh(ctrl controller, settle time.Duration) {
	ctrl.sendCommand(displayRefresh)
	ctrl.delay(settle)
	ctrl.waitReady()
}

// powerOffDeep powers the controller down and enters deep sleep. The settle
// between power-off and deep sleep must be at least 100 ms or the next wake
// shows corruption.
func powerOffDeep(ctrl controller, settle time.Duration) {
	if settle < minDeepSleepSettle {
		settle = minDeepSleepSettle
	}

	ctrl.sendCommand(vcomDataInterval)
	ctrl.sendData(vcomSleepMode)

	ctrl.sendCommand(powerOff)
	ctrl.waitReady()
	ctrl.delay(settle)

	ctrl.sendCommand(deepSleep)
	ctrl.sendData(deepSleepKey)
}
