package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/shaiso/Sharder/internal/protocol"
)

// Events получает события процессов. Реализация должна быть неблокирующей
// или быстро передавать событие в цикл оркестратора.
type Events interface {
	OnMessage(workerID, pid int, env protocol.Envelope)
	OnExit(workerID, pid int, exit ExitStatus)
}

// ExitStatus — итог завершения процесса.
type ExitStatus struct {
	Code   int
	Signal string
	Err    error
}

// Process — запущенный процесс воркера.
type Process interface {
	// PID — идентификатор процесса (уникальная identity экземпляра).
	PID() int

	// Send отправляет сообщение воркеру.
	Send(env protocol.Envelope) error

	// Terminate останавливает процесс: SIGTERM, затем через grace — SIGKILL.
	Terminate(grace time.Duration)
}

// Spawner создаёт процессы воркеров.
type Spawner interface {
	Spawn(ctx context.Context, workerID int, events Events) (Process, error)
}

// ExecSpawner запускает воркеры через os/exec.
type ExecSpawner struct {
	// Command — путь к бинарнику (default: текущий исполняемый файл).
	Command string

	// Args — аргументы перед --index (default: ["worker"]).
	Args []string

	// Env — дополнительные переменные окружения (к окружению родителя).
	Env []string

	Logger *slog.Logger
}

// Spawn запускает процесс для слота workerID.
func (s *ExecSpawner) Spawn(_ context.Context, workerID int, events Events) (Process, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	command := s.Command
	if command == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		command = exe
	}
	args := s.Args
	if args == nil {
		args = []string{"worker"}
	}
	args = append(append([]string{}, args...), "--index", strconv.Itoa(workerID))

	// Процесс не привязан к ctx: его жизнь ограничивает Terminate, а не отмена запроса.
	cmd := exec.Command(command, args...)
	cmd.Env = append(os.Environ(), s.Env...)
	configureWorkerProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %d: %w", workerID, err)
	}

	p := &execProcess{
		workerID: workerID,
		cmd:      cmd,
		stdin:    stdin,
		enc:      protocol.NewEncoder(stdin),
		done:     make(chan struct{}),
		logger:   logger.With("worker", workerID, "pid", cmd.Process.Pid),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.readMessages(stdout, events)
	}()
	go func() {
		defer readers.Done()
		p.forwardStderr(stderr)
	}()
	go p.wait(&readers, events)

	p.logger.Info("worker process started", "command", command)
	return p, nil
}

// execProcess — процесс, запущенный ExecSpawner.
type execProcess struct {
	workerID int
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	enc      *protocol.Encoder
	done     chan struct{}
	logger   *slog.Logger
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Send(env protocol.Envelope) error {
	select {
	case <-p.done:
		return ErrProcessExited
	default:
	}
	if err := p.enc.Encode(env); err != nil {
		return fmt.Errorf("send to worker %d: %w", p.workerID, err)
	}
	return nil
}

func (p *execProcess) Terminate(grace time.Duration) {
	select {
	case <-p.done:
		return
	default:
	}
	terminateWorkerProcess(p.cmd, grace, p.done)
}

// readMessages читает сообщения воркера до закрытия stdout.
func (p *execProcess) readMessages(r io.Reader, events Events) {
	dec := protocol.NewDecoder(r)
	pid := p.PID()
	for {
		env, err := dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, protocol.ErrMalformed) {
				p.logger.Warn("malformed message from worker", "error", err)
				continue
			}
			p.logger.Debug("worker stdout closed", "error", err)
			return
		}
		if env.Origin == 0 {
			env.Origin = p.workerID
		}
		events.OnMessage(p.workerID, pid, env)
	}
}

// stderrLineLimit — строки stderr длиннее лимита пропускаются.
const stderrLineLimit = 64 * 1024

// forwardStderr пересылает stderr воркера в лог до закрытия потока.
func (p *execProcess) forwardStderr(r io.Reader) {
	lines := protocol.NewLineReader(r, stderrLineLimit)
	for {
		line, err := lines.Next()
		if errors.Is(err, protocol.ErrLineTooLong) {
			p.logger.Warn("worker stderr line dropped", "error", err)
			continue
		}
		if err != nil {
			return
		}
		p.logger.Info(string(line), "stream", "stderr")
	}
}

// wait ждёт завершения процесса и сообщает о нём после того,
// как прочитаны все сообщения из stdout.
func (p *execProcess) wait(readers *sync.WaitGroup, events Events) {
	readers.Wait()
	err := p.cmd.Wait()
	close(p.done)
	_ = p.stdin.Close()

	status := ExitStatus{Err: err}
	if state := p.cmd.ProcessState; state != nil {
		status.Code = state.ExitCode()
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			status.Signal = ws.Signal().String()
		}
	}

	p.logger.Info("worker process exited",
		"code", status.Code,
		"signal", status.Signal,
	)
	events.OnExit(p.workerID, p.PID(), status)
}

// SpawnWithRetry вызывает Spawn до attempts раз с паузой backoff между попытками.
func SpawnWithRetry(ctx context.Context, s Spawner, workerID int, events Events, attempts int, backoff time.Duration) (Process, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		p, err := s.Spawn(ctx, workerID, events)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: worker %d after %d attempts: %v", ErrSpawnFailed, workerID, attempts, lastErr)
}
