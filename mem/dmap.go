package mem

// zeropgOnce/zeroPaOnce hold a single page of zeroes shared (read-only) by every VMA
// with no backing page yet allocated, exactly as the teacher's
// Dmap_init reserves one physical zero page at boot.
var zeropgOnce *Pg_t
var zeroPaOnce Pa_t

// InitZeropg allocates and pins the shared zero page. Must be called
// once after Mkphysmem, before any address space is constructed.
func (phys *Physmem_t) InitZeropg() {
	pg, p_pg, ok := phys.Refpg_new()
	if !ok {
		panic("oom initializing zero page")
	}
	phys.Refup(p_pg)
	zeropgOnce = pg
	zeroPaOnce = p_pg
}

// Zeropg returns the shared zero page.
func (phys *Physmem_t) Zeropg() (*Pg_t, Pa_t) {
	if zeropgOnce == nil {
		panic("zero page not initialized")
	}
	return zeropgOnce, zeroPaOnce
}
