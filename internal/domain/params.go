package domain

import (
	"encoding/json"
	"fmt"
)

// Params — типизированные параметры команды.
//
// На проводе params — произвольный JSON-объект; внутри системы каждый
// известный тип команды имеет свой вариант. Неизвестные типы проходят
// через RawParams без потерь (forward compatibility: новые агенты могут
// понимать команды, о которых консоль ещё не знает).
type Params interface {
	isParams()
}

// MessageParams — параметры команды MESSAGE.
type MessageParams struct {
	// Text — текст, который агент покажет пользователю.
	Text string `json:"text"`
}

// BlockWebsiteParams — параметры команды BLOCK_WEBSITE.
type BlockWebsiteParams struct {
	// URLs — список блокируемых адресов.
	URLs []string `json:"urls"`
}

// ExecParams — параметры команд CUSTOM и EXECUTE.
type ExecParams struct {
	// Program — исполняемый файл или команда.
	Program string `json:"program"`

	// Args — аргументы командной строки одной строкой.
	Args string `json:"args,omitempty"`
}

// UpdateParams — параметры команды UPDATE.
type UpdateParams struct {
	// Version — целевая версия агента; пустая строка = последняя.
	Version string `json:"version,omitempty"`

	// Force — обновлять даже при совпадающей версии.
	Force bool `json:"force,omitempty"`

	// RestartAfter — перезагрузить компьютер после обновления.
	RestartAfter bool `json:"restart_after,omitempty"`
}

// RawParams — параметры неизвестного типа команды (catch-all).
type RawParams map[string]any

func (MessageParams) isParams()      {}
func (BlockWebsiteParams) isParams() {}
func (ExecParams) isParams()         {}
func (UpdateParams) isParams()       {}
func (RawParams) isParams()          {}

// EncodeParams сериализует params в wire-представление.
// Возвращает nil для nil params (команды без параметров).
func EncodeParams(p Params) (map[string]any, error) {
	if p == nil {
		return nil, nil
	}

	if raw, ok := p.(RawParams); ok {
		return map[string]any(raw), nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return out, nil
}

// DecodeParams восстанавливает типизированные params из wire-представления.
// Для неизвестных типов команды возвращает RawParams.
func DecodeParams(cmdType CommandType, raw map[string]any) (Params, error) {
	if raw == nil {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal raw params: %w", err)
	}

	switch cmdType {
	case CommandTypeMessage:
		var p MessageParams
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode MESSAGE params: %w", err)
		}
		return p, nil

	case CommandTypeBlockWebsite:
		var p BlockWebsiteParams
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode BLOCK_WEBSITE params: %w", err)
		}
		return p, nil

	case CommandTypeCustom, CommandTypeExecute:
		var p ExecParams
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode exec params: %w", err)
		}
		return p, nil

	case CommandTypeUpdate:
		var p UpdateParams
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode UPDATE params: %w", err)
		}
		return p, nil

	default:
		return RawParams(raw), nil
	}
}
