package saures

import "fmt"

var controllerNames = map[string]string{
	"1.3": "счетчик C1",
	"1.4": "счетчик C1",
	"1.5": "счетчик C1",
	"3.1": "контроллер R1(до 2017)",
	"3.2": "контроллер R1(до 2017)",
	"3.4": "контроллер R1 8 (2017-2018)",
	"3.5": "контроллер R1 4 (после 2018)",
	"3.6": "контроллер R1 4 (после 2024)",
	"4.0": "контроллер R2 (4.0) 8 аналоговых каналов",
	"4.5": "контроллер R2 (4.5) 8 аналоговых каналов с клеммами для подключения внешнего питания",
	"4.1": "контроллер R4",
	"6.3": "контроллер R5",
	"7.2": "контроллер R6",
	"8.2": "контроллер R7(до 2020)",
	"8.3": "контроллер R7(после 2020)",
	"9.1": "контроллер R8(после 2022)",
}

// ControllerName maps a hardware version id to the controller model.
func ControllerName(versionID string) string {
	if name, ok := controllerNames[versionID]; ok {
		return name
	}
	return fmt.Sprintf("неизвестный контроллер (%s)", versionID)
}
