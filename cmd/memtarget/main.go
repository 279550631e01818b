// Command memtarget is a stand-in game process for trying wcscan. It keeps
// Warcraft-style state blocks in its heap and prints where they live.
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"
	"time"
	"unsafe"
)

// pad bytes of 0xCC precede every tag so the scorer sees a clean window.
const pad = 16

type block struct {
	name string
	buf  []byte
}

func newBlock(name, tag string, payload int) *block {
	b := &block{name: name, buf: make([]byte, pad+len(tag)+payload)}
	for i := 0; i < pad; i++ {
		b.buf[i] = 0xCC
	}
	copy(b.buf[pad:], tag)
	return b
}

func (b *block) addr() uintptr {
	return uintptr(unsafe.Pointer(&b.buf[pad]))
}

func (b *block) payload() []byte {
	return b.buf[pad+8:]
}

func (b *block) putInt32(i int, v int32) {
	binary.LittleEndian.PutUint32(b.payload()[i*4:], uint32(v))
}

func (b *block) int32At(i int) int32 {
	return int32(binary.LittleEndian.Uint32(b.payload()[i*4:]))
}

func (b *block) putFloat32(i int, v float32) {
	binary.LittleEndian.PutUint32(b.payload()[i*4:], math.Float32bits(v))
}

var (
	mu sync.Mutex

	gameState = newBlock("wc2_game_state", "GAMESTAT", 64)
	units     = newBlock("wc2_unit_data", "UNITDATA", 64)
	resources = newBlock("wc2_resources", "RESOURCE", 16)
	// wc3Load mimics "mov ecx, [global]; test ecx, ecx" pointing at gameState.
	wc3Load = make([]byte, 64)
)

const (
	resGold = iota
	resWood
	resOre
	resOil
)

const refresh = 500 * time.Millisecond

func init() {
	gameState.putInt32(0, 1) // game mode
	gameState.putInt32(1, 2) // players
	for i := 0; i < 8; i++ {
		units.putFloat32(i*2, float32(100+i*32))
		units.putFloat32(i*2+1, float32(200-i*16))
	}
	resources.putInt32(resGold, 2000)
	resources.putInt32(resWood, 1000)
	resources.putInt32(resOre, 0)
	resources.putInt32(resOil, 500)

	for i := range wc3Load {
		wc3Load[i] = 0xCC
	}
	copy(wc3Load[16:], []byte{0x8B, 0x0D})
	binary.LittleEndian.PutUint32(wc3Load[18:], uint32(gameState.addr()))
	copy(wc3Load[22:], []byte{0x85, 0xC9})
}

func main() {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	go listenInput()

	for range ticker.C {
		mu.Lock()
		gameState.putInt32(2, gameState.int32At(2)+1) // game tick
		mu.Unlock()
		render()
	}
}

func listenInput() {
	reader := bufio.NewReader(os.Stdin)
	for {
		ch, err := reader.ReadByte()
		if err != nil {
			return
		}
		mu.Lock()
		switch ch {
		case '+':
			resources.putInt32(resGold, resources.int32At(resGold)+100)
			resources.putInt32(resWood, resources.int32At(resWood)+50)
		case '-':
			resources.putInt32(resGold, resources.int32At(resGold)-100)
			resources.putInt32(resWood, resources.int32At(resWood)-50)
		}
		mu.Unlock()
	}
}

func render() {
	mu.Lock()
	defer mu.Unlock()

	fmt.Print("\033[H\033[2J") // clear screen for refreshed view
	fmt.Printf("wcscan test target, PID %d (Ctrl+C to exit; +/- to change resources, press Enter after key on Windows)\n\n", os.Getpid())
	for _, b := range []*block{gameState, units, resources} {
		fmt.Printf("%-16s 0x%X\n", b.name, b.addr())
	}
	fmt.Printf("%-16s 0x%X\n\n", "GameState load", uintptr(unsafe.Pointer(&wc3Load[16])))
	fmt.Printf("tick:  %d\n", gameState.int32At(2))
	fmt.Printf("gold:  %d\n", resources.int32At(resGold))
	fmt.Printf("wood:  %d\n", resources.int32At(resWood))
	fmt.Printf("oil:   %d\n", resources.int32At(resOil))
}
