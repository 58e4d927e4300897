package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/joshp123/gohome-cocoro/plugins/cocoro"
)

func loginCmd(ctx context.Context, client *cocoro.Client, out outputMode) {
	if err := client.Login(ctx); err != nil {
		fatal("login", err)
	}
	loggedIn := client.Session().LoggedInAt()
	if out.structured() {
		out.print(map[string]any{"status": "ok", "logged_in_at": loggedIn})
		return
	}
	fmt.Printf("ok: logged in at %s\n", loggedIn.Format("2006-01-02 15:04:05"))
}

func devicesCmd(ctx context.Context, client *cocoro.Client, out outputMode) {
	devices, err := client.ListDevices(ctx)
	if err != nil {
		fatal("list devices", err)
	}
	if out.structured() {
		out.print(map[string]any{"devices": devices})
		return
	}
	rows := [][]string{{"NAME", "ID", "MODEL", "ONLINE"}}
	for _, d := range devices {
		rows = append(rows, []string{d.Name, d.ID, d.ModelName, strconv.FormatBool(d.Online)})
	}
	out.table(rows)
}

func statusCmd(ctx context.Context, client *cocoro.Client, args []string, out outputMode) {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	device := flags.String("device", "", "device name or id (defaults to cocoro.device_id)")
	_ = flags.Parse(args)

	deviceID := client.DeviceID()
	if *device != "" {
		devices, err := client.ListDevices(ctx)
		if err != nil {
			fatal("list devices", err)
		}
		deviceID, err = resolveDevice(*device, devices)
		if err != nil {
			fatal("status", err)
		}
	}

	snapshot, err := client.SensorData(ctx, deviceID)
	if err != nil {
		fatal("status", err)
	}
	if out.structured() {
		out.print(snapshot)
		return
	}
	out.table([][]string{
		{"FIELD", "VALUE"},
		{"device", snapshot.DeviceID},
		{"temperature", optionalInt(snapshot.Temperature, "°C")},
		{"humidity", optionalInt(snapshot.Humidity, "%")},
		{"water_tank", optionalBool(snapshot.WaterTank, "present", "empty")},
		{"humidity_mode", optionalBool(snapshot.HumidityMode, "on", "off")},
	})
}

func modeCmd(ctx context.Context, client *cocoro.Client, args []string, out outputMode) {
	if len(args) == 0 {
		on, err := client.HumidityMode(ctx)
		if err != nil {
			fatal("humidity mode", err)
		}
		mode := cocoro.ModeFromBool(on)
		if out.structured() {
			out.print(map[string]any{"mode": mode})
			return
		}
		fmt.Printf("humidity mode: %s\n", mode)
		return
	}
	if len(args) > 1 {
		fatal("mode", fmt.Errorf("usage: cocoro mode [on|off]"))
	}

	mode, err := cocoro.ParseMode(args[0])
	if err != nil {
		fatal("mode", err)
	}
	if err := client.SetHumidityMode(ctx, mode); err != nil {
		fatal("set humidity mode", err)
	}
	if out.structured() {
		out.print(map[string]any{"mode": mode, "status": "ok"})
		return
	}
	fmt.Printf("ok: humidity mode -> %s\n", mode)
}

func optionalInt(v *int, unit string) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v) + unit
}

func optionalBool(v *bool, yes, no string) string {
	if v == nil {
		return "-"
	}
	if *v {
		return yes
	}
	return no
}
