package particles

import (
	"log/slog"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// blockTask is one unit of parallel work: the step pass over one block.
type blockTask struct {
	pass  *typePass
	block *Block
	limit int // particles present before emission
	out   *blockResult
	wg    *sync.WaitGroup
}

// blockResult collects what happened inside one block.
type blockResult struct {
	triggered []int // per event index
	killed    int
	err       error
}

// workerScratch holds per-worker reusable buffers.
type workerScratch struct {
	accel      []mgl32.Vec3
	positions  []mgl32.Vec3
	velocities []mgl32.Vec3
	best       []float32
	triggers   []float32
	eventIndex []int
}

// resize makes every buffer hold n elements, growing only when needed.
func (s *workerScratch) resize(n int) {
	if cap(s.accel) < n {
		s.accel = make([]mgl32.Vec3, n)
		s.positions = make([]mgl32.Vec3, n)
		s.velocities = make([]mgl32.Vec3, n)
		s.best = make([]float32, n)
		s.triggers = make([]float32, n)
		s.eventIndex = make([]int, n)
	}
	s.accel = s.accel[:n]
	s.positions = s.positions[:n]
	s.velocities = s.velocities[:n]
	s.best = s.best[:n]
	s.triggers = s.triggers[:n]
	s.eventIndex = s.eventIndex[:n]
}

// workerPool runs block tasks on persistent goroutines.
type workerPool struct {
	numWorkers int
	scratches  []workerScratch
	logger     *slog.Logger

	workChan chan blockTask // sends work to workers
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool
}

func newWorkerPool(numWorkers int, logger *slog.Logger) *workerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &workerPool{
		numWorkers: numWorkers,
		scratches:  make([]workerScratch, numWorkers),
		logger:     logger,
	}
}

// start launches the workers if they are not running yet.
func (p *workerPool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan blockTask, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Debug("particle workers started", "workers", p.numWorkers)
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	p.running = false
	p.logger.Debug("particle workers stopped")
}

func (p *workerPool) worker(workerID int) {
	defer p.wg.Done()
	scratch := &p.scratches[workerID]

	for {
		select {
		case <-p.stopChan:
			return
		case task, ok := <-p.workChan:
			if !ok {
				return
			}
			*task.out = task.pass.processBlock(task.block, task.limit, scratch)
			task.wg.Done()
		}
	}
}

// run dispatches tasks and blocks until all of them are done.
func (p *workerPool) run(tasks []blockTask) {
	p.start()

	var done sync.WaitGroup
	done.Add(len(tasks))
	for i := range tasks {
		tasks[i].wg = &done
		p.workChan <- tasks[i]
	}
	done.Wait()
}
