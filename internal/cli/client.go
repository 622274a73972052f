package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RoomResponse — аудитория из API.
type RoomResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ComputerResponse — компьютер из API.
type ComputerResponse struct {
	ID              string `json:"id"`
	RoomID          string `json:"room_id"`
	Hostname        string `json:"hostname"`
	MACAddress      string `json:"mac_address"`
	IPAddress       string `json:"ip_address,omitempty"`
	Status          string `json:"status"`
	Available       bool   `json:"available"`
	LastHeartbeatAt string `json:"last_heartbeat_at,omitempty"`
}

// CommandResponse — команда из API.
type CommandResponse struct {
	ID          string         `json:"id"`
	ComputerID  string         `json:"computer_id,omitempty"`
	RoomID      string         `json:"room_id,omitempty"`
	IsBroadcast bool           `json:"is_broadcast,omitempty"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Params      map[string]any `json:"params,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Output      string         `json:"output,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// OutcomeResponse — итог доставки одной команды.
type OutcomeResponse struct {
	CommandID  string `json:"command_id"`
	ComputerID string `json:"computer_id,omitempty"`
	Status     string `json:"status"`
}

// DispatchResultResponse — итог отправки команды.
type DispatchResultResponse struct {
	Outcomes []OutcomeResponse `json:"outcomes"`
	Sent     int               `json:"sent"`
	Queued   int               `json:"queued"`
}

// --- Request types ---

// DispatchCommandRequest — отправка команды в аудиторию.
type DispatchCommandRequest struct {
	Type        string         `json:"type"`
	Target      string         `json:"target,omitempty"`
	ComputerID  string         `json:"computer_id,omitempty"`
	ComputerIDs []string       `json:"computer_ids,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// BroadcastRequest — широковещательная команда.
type BroadcastRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// UpdateAgentsRequest — обновление всех агентов.
type UpdateAgentsRequest struct {
	Version      string `json:"version,omitempty"`
	Force        bool   `json:"force,omitempty"`
	RestartAfter bool   `json:"restart_after,omitempty"`
}

// ListCommandsOpts — параметры фильтрации истории команд.
type ListCommandsOpts struct {
	RoomID     string
	ComputerID string
	Status     string
	Limit      int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Unilab API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Rooms ---

// ListRooms возвращает все аудитории.
func (c *Client) ListRooms() ([]RoomResponse, error) {
	var rooms []RoomResponse
	err := c.list("/api/v1/rooms", nil, &rooms)
	return rooms, err
}

// GetRoom возвращает аудиторию по ID.
func (c *Client) GetRoom(id string) (*RoomResponse, error) {
	var room RoomResponse
	err := c.get("/api/v1/rooms/"+id, &room)
	return &room, err
}

// ListRoomComputers возвращает компьютеры аудитории.
func (c *Client) ListRoomComputers(roomID string) ([]ComputerResponse, error) {
	var computers []ComputerResponse
	err := c.list("/api/v1/rooms/"+roomID+"/computers", nil, &computers)
	return computers, err
}

// --- Computers ---

// GetComputer возвращает компьютер по ID.
func (c *Client) GetComputer(id string) (*ComputerResponse, error) {
	var computer ComputerResponse
	err := c.get("/api/v1/computers/"+id, &computer)
	return &computer, err
}

// --- Commands ---

// DispatchRoomCommand отправляет команду в аудиторию.
func (c *Client) DispatchRoomCommand(roomID string, req DispatchCommandRequest) (*DispatchResultResponse, error) {
	var result DispatchResultResponse
	err := c.post("/api/v1/rooms/"+roomID+"/commands", req, &result)
	return &result, err
}

// Broadcast отправляет команду всем агентам.
func (c *Client) Broadcast(req BroadcastRequest) (*DispatchResultResponse, error) {
	var result DispatchResultResponse
	err := c.post("/api/v1/commands/broadcast", req, &result)
	return &result, err
}

// UpdateAgents запускает обновление всех агентов.
func (c *Client) UpdateAgents(req UpdateAgentsRequest) (*DispatchResultResponse, error) {
	var result DispatchResultResponse
	err := c.post("/api/v1/agents/update", req, &result)
	return &result, err
}

// GetCommand возвращает команду по ID.
func (c *Client) GetCommand(id string) (*CommandResponse, error) {
	var cmd CommandResponse
	err := c.get("/api/v1/commands/"+id, &cmd)
	return &cmd, err
}

// ListCommands возвращает историю команд с фильтрацией.
func (c *Client) ListCommands(opts ListCommandsOpts) ([]CommandResponse, error) {
	params := url.Values{}
	if opts.RoomID != "" {
		params.Set("room_id", opts.RoomID)
	}
	if opts.ComputerID != "" {
		params.Set("computer_id", opts.ComputerID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var commands []CommandResponse
	err := c.list("/api/v1/commands", params, &commands)
	return commands, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
