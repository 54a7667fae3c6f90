// Package monitoring exposes a clock as an HTTP server for external
// observation and control.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/pbayer/events/sim"
)

// PortEnvVar names the environment variable that configures the monitor
// port. It is read from the process environment or a .env file.
const PortEnvVar = "VCLOCK_MONITOR_PORT"

// Monitor can turn a clock into a server and allows external monitoring and
// controlling of the simulation.
type Monitor struct {
	clock       *sim.Clock
	portNumber  int
	openBrowser bool
}

// NewMonitor creates a new Monitor. The port is taken from VCLOCK_MONITOR_PORT
// if set; otherwise a random free port is used.
func NewMonitor() *Monitor {
	m := &Monitor{}

	if port, ok := portFromEnv(); ok {
		m.WithPortNumber(port)
	}

	return m
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor page in a browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true

	return m
}

// RegisterClock registers the clock to be monitored.
func (m *Monitor) RegisterClock(c *sim.Clock) {
	m.clock = c
}

func portFromEnv() (int, bool) {
	// A missing .env file is fine; the variable may come from the
	// environment directly.
	_ = godotenv.Load()

	value := os.Getenv(PortEnvVar)
	if value == "" {
		return 0, false
	}

	port, err := strconv.Atoi(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ignoring invalid %s=%q\n", PortEnvVar, value)
		return 0, false
	}

	return port, true
}

// Router builds the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/state", m.state)
	r.HandleFunc("/api/events", m.listEvents)
	r.HandleFunc("/api/step", m.step)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/stop", m.stop)
	r.HandleFunc("/api/reset", m.reset)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/inspect", m.inspect)

	return r
}

// StartServer starts the monitor as a web server with a custom port if
// wanted.
func (m *Monitor) StartServer() {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	if m.openBrowser {
		err := browser.OpenURL(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %s\n", err)
		}
	}

	go func() {
		err := http.Serve(listener, m.Router())
		dieOnErr(err)
	}()
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%.10f}", m.clock.CurrentTime())
}

type stateRsp struct {
	State   string  `json:"state"`
	Now     float64 `json:"now"`
	EvCount int     `json:"evcount"`
	TEnd    float64 `json:"tend"`
	Pending int     `json:"pending"`
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	snapshot, err := m.clock.State()
	if replyErr(w, err) {
		return
	}

	writeJSON(w, stateRsp{
		State:   snapshot.State.String(),
		Now:     float64(snapshot.Now),
		EvCount: snapshot.EvCount,
		TEnd:    float64(snapshot.TEnd),
		Pending: snapshot.Pending,
	})
}

type eventRsp struct {
	ID    int64   `json:"id"`
	Time  float64 `json:"time"`
	Cycle float64 `json:"cycle"`
}

func (m *Monitor) listEvents(w http.ResponseWriter, _ *http.Request) {
	events, err := m.clock.Events()
	if replyErr(w, err) {
		return
	}

	rsp := make([]eventRsp, 0, len(events))
	for _, e := range events {
		rsp = append(rsp, eventRsp{
			ID:    int64(e.ID),
			Time:  float64(e.Time),
			Cycle: float64(e.Cycle),
		})
	}

	writeJSON(w, rsp)
}

type resultRsp struct {
	Events  int     `json:"events"`
	Time    float64 `json:"time"`
	Stopped bool    `json:"stopped"`
}

func (m *Monitor) step(w http.ResponseWriter, _ *http.Request) {
	res, err := m.clock.Step()
	if replyErr(w, err) {
		return
	}

	writeResult(w, res)
}

func (m *Monitor) run(w http.ResponseWriter, r *http.Request) {
	duration, err := floatParam(r, "duration")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	res, err := m.clock.Run(sim.VTime(duration))
	if replyErr(w, err) {
		return
	}

	writeResult(w, res)
}

func (m *Monitor) stop(w http.ResponseWriter, _ *http.Request) {
	res, err := m.clock.Stop()
	if replyErr(w, err) {
		return
	}

	writeResult(w, res)
}

func (m *Monitor) reset(w http.ResponseWriter, r *http.Request) {
	t0, err := floatParam(r, "t0")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	err = m.clock.Reset(sim.VTime(t0))
	if replyErr(w, err) {
		return
	}

	fmt.Fprintf(w, "{\"now\":%.10f}", m.clock.CurrentTime())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func (m *Monitor) inspect(w http.ResponseWriter, _ *http.Request) {
	snapshot, err := m.clock.State()
	if replyErr(w, err) {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(snapshot)
	serializer.SetMaxDepth(1)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func floatParam(r *http.Request, name string) (float64, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0, errors.New("missing parameter " + name)
	}

	return strconv.ParseFloat(value, 64)
}

func writeResult(w http.ResponseWriter, res sim.Result) {
	writeJSON(w, resultRsp{
		Events:  res.Events,
		Time:    float64(res.Time),
		Stopped: res.Stopped,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

// replyErr reports a clock error to the client. Precondition violations map
// to 409, everything else to 500.
func replyErr(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	status := http.StatusInternalServerError
	if errors.Is(err, sim.ErrNotIdle) || errors.Is(err, sim.ErrNotRunning) {
		status = http.StatusConflict
	}

	w.WriteHeader(status)
	fmt.Fprintf(w, "Error: %s", err)

	return true
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
