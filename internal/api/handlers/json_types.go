// json_types.go — JSON-типы, допускающие несколько форм значения
// (строка или список, число или строка) в телах запросов к Docker API.
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// stringList — список строк; одиночная строка разбивается по пробелам.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = strings.Fields(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("ожидается строка или список строк")
	}
	*l = list
	return nil
}

// filterList — значение фильтра: строка или список строк (без разбиения).
type filterList []string

func (l *filterList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = []string{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("значение фильтра: ожидается строка или список строк")
	}
	*l = list
	return nil
}

// flexString — строка, число или null ("512m", 536870912, 8080, null → "").
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		return fmt.Errorf("ожидается строка или число")
	}
	if f, err := num.Float64(); err == nil && f == float64(int64(f)) {
		*s = flexString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*s = flexString(num.String())
	return nil
}

// volumeBind — монтирование тома: {"bind": "/data", "mode": "rw"}.
type volumeBind struct {
	Bind string `json:"bind"`
	Mode string `json:"mode"`
}

// bindsFromVolumes преобразует карту монтирований в формат Binds ("src:dst[:mode]").
func bindsFromVolumes(volumes map[string]volumeBind) ([]string, error) {
	if len(volumes) == 0 {
		return nil, nil
	}
	binds := make([]string, 0, len(volumes))
	for src, v := range volumes {
		if v.Bind == "" {
			return nil, fmt.Errorf("volumes[%s]: bind обязателен", src)
		}
		bind := src + ":" + v.Bind
		if v.Mode != "" {
			bind += ":" + v.Mode
		}
		binds = append(binds, bind)
	}
	return binds, nil
}

func flexMap(m map[string]flexString) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = string(v)
	}
	return out
}
