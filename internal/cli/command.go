package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewCommandCmd создаёт группу команд для отправки и просмотра команд.
func NewCommandCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Dispatch and inspect commands",
	}

	cmd.AddCommand(
		newCommandSendCmd(clientFn, outputFn),
		newCommandBroadcastCmd(clientFn, outputFn),
		newCommandUpdateCmd(clientFn, outputFn),
		newCommandShowCmd(clientFn, outputFn),
		newCommandListCmd(clientFn, outputFn),
	)

	return cmd
}

// parseParams разбирает --params как JSON-объект.
func parseParams(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("invalid --params JSON: %w", err)
	}
	return params, nil
}

func resultRows(result *DispatchResultResponse) ([]string, [][]string) {
	headers := []string{"COMMAND_ID", "COMPUTER_ID", "STATUS"}
	rows := make([][]string, len(result.Outcomes))
	for i, o := range result.Outcomes {
		rows[i] = []string{o.CommandID, o.ComputerID, o.Status}
	}
	return headers, rows
}

func newCommandSendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		cmdType   string
		target    string
		computer  string
		computers []string
		paramsRaw string
	)

	cmd := &cobra.Command{
		Use:   "send ROOM_ID",
		Short: "Dispatch a command to a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			params, err := parseParams(paramsRaw)
			if err != nil {
				return err
			}

			req := DispatchCommandRequest{
				Type:        cmdType,
				Target:      target,
				ComputerID:  computer,
				ComputerIDs: computers,
				Params:      params,
			}

			result, err := client.DispatchRoomCommand(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Dispatched: %d sent, %d queued", result.Sent, result.Queued))
			headers, rows := resultRows(result)
			out.Print(headers, rows, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&cmdType, "type", "", "Command type, e.g. SHUTDOWN, MESSAGE (required)")
	cmd.Flags().StringVar(&target, "target", "all", "Target: single, group or all")
	cmd.Flags().StringVar(&computer, "computer", "", "Computer ID for --target=single")
	cmd.Flags().StringSliceVar(&computers, "computers", nil, "Computer IDs for --target=group")
	cmd.Flags().StringVar(&paramsRaw, "params", "", "Command params as JSON object")
	cmd.MarkFlagRequired("type")

	return cmd
}

func newCommandBroadcastCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		cmdType   string
		paramsRaw string
	)

	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Dispatch a command to all agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			params, err := parseParams(paramsRaw)
			if err != nil {
				return err
			}

			result, err := client.Broadcast(BroadcastRequest{Type: cmdType, Params: params})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Broadcast dispatched: %d sent, %d queued", result.Sent, result.Queued))
			headers, rows := resultRows(result)
			out.Print(headers, rows, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&cmdType, "type", "", "Command type (required)")
	cmd.Flags().StringVar(&paramsRaw, "params", "", "Command params as JSON object")
	cmd.MarkFlagRequired("type")

	return cmd
}

func newCommandUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		version      string
		force        bool
		restartAfter bool
	)

	cmd := &cobra.Command{
		Use:   "update-agents",
		Short: "Trigger a system-wide agent update",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			result, err := client.UpdateAgents(UpdateAgentsRequest{
				Version:      version,
				Force:        force,
				RestartAfter: restartAfter,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Update dispatched: %d sent, %d queued", result.Sent, result.Queued))
			headers, rows := resultRows(result)
			out.Print(headers, rows, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Target agent version")
	cmd.Flags().BoolVar(&force, "force", false, "Force reinstall even if up to date")
	cmd.Flags().BoolVar(&restartAfter, "restart-after", false, "Restart agents after update")

	return cmd
}

func newCommandShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show command details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			command, err := client.GetCommand(args[0])
			if err != nil {
				return err
			}

			out.Details([][2]string{
				{"ID", command.ID},
				{"Type", command.Type},
				{"Status", command.Status},
				{"Computer", command.ComputerID},
				{"Error", command.Error},
				{"Output", command.Output},
				{"Created", command.CreatedAt},
			}, command)
			return nil
		},
	}
}

func newCommandListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListCommandsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List command history",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			commands, err := client.ListCommands(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TYPE", "STATUS", "COMPUTER_ID", "CREATED"}
			rows := make([][]string, len(commands))
			for i, c := range commands {
				rows[i] = []string{c.ID, c.Type, c.Status, c.ComputerID, c.CreatedAt}
			}

			out.Print(headers, rows, commands)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.RoomID, "room", "", "Filter by room ID")
	cmd.Flags().StringVar(&opts.ComputerID, "computer", "", "Filter by computer ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum number of commands")

	return cmd
}

// NewRoomCmd создаёт группу команд для просмотра аудиторий.
func NewRoomCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Inspect rooms",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all rooms",
			RunE: func(cmd *cobra.Command, args []string) error {
				client := clientFn()
				out := outputFn()

				rooms, err := client.ListRooms()
				if err != nil {
					return err
				}

				headers := []string{"ID", "NAME", "DESCRIPTION", "CREATED"}
				rows := make([][]string, len(rooms))
				for i, r := range rooms {
					rows[i] = []string{r.ID, r.Name, r.Description, r.CreatedAt}
				}

				out.Print(headers, rows, rooms)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Show room details",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client := clientFn()
				out := outputFn()

				room, err := client.GetRoom(args[0])
				if err != nil {
					return err
				}

				out.Details([][2]string{
					{"ID", room.ID},
					{"Name", room.Name},
					{"Description", room.Description},
					{"Created", room.CreatedAt},
				}, room)
				return nil
			},
		},
	)

	return cmd
}

// NewComputerCmd создаёт группу команд для просмотра компьютеров.
func NewComputerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "computer",
		Short: "Inspect computers",
	}

	cmd.AddCommand(
		newComputerListCmd(clientFn, outputFn),
		&cobra.Command{
			Use:   "show ID",
			Short: "Show computer details",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client := clientFn()
				out := outputFn()

				computer, err := client.GetComputer(args[0])
				if err != nil {
					return err
				}

				out.Details([][2]string{
					{"ID", computer.ID},
					{"Room", computer.RoomID},
					{"Hostname", computer.Hostname},
					{"MAC", computer.MACAddress},
					{"IP", computer.IPAddress},
					{"Status", computer.Status},
					{"Available", strconv.FormatBool(computer.Available)},
					{"Last heartbeat", computer.LastHeartbeatAt},
				}, computer)
				return nil
			},
		},
	)

	return cmd
}

func newComputerListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var roomID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List computers in a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			computers, err := client.ListRoomComputers(roomID)
			if err != nil {
				return err
			}

			headers := []string{"ID", "HOSTNAME", "MAC", "STATUS", "AVAILABLE", "LAST_HEARTBEAT"}
			rows := make([][]string, len(computers))
			for i, c := range computers {
				rows[i] = []string{
					c.ID, c.Hostname, c.MACAddress,
					c.Status, strconv.FormatBool(c.Available), c.LastHeartbeatAt,
				}
			}

			out.Print(headers, rows, computers)
			return nil
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "Room ID (required)")
	cmd.MarkFlagRequired("room")

	return cmd
}
