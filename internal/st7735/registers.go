package st7735

// ST7735S command set (the subset this driver issues).
const (
	cmdSWRESET = 0x01 // software reset
	cmdSLPIN   = 0x10 // sleep in
	cmdSLPOUT  = 0x11 // sleep out
	cmdINVOFF  = 0x20
	cmdDISPOFF = 0x28
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A // column address set
	cmdRASET   = 0x2B // row address set
	cmdRAMWR   = 0x2C // memory write
	cmdMADCTL  = 0x36 // memory access control
	cmdCOLMOD  = 0x3A // interface pixel format
	cmdFRMCTR1 = 0xB1 // frame rate, normal mode
	cmdFRMCTR2 = 0xB2 // frame rate, idle mode
	cmdFRMCTR3 = 0xB3 // frame rate, partial mode
	cmdINVCTR  = 0xB4 // display inversion control
	cmdPWCTR1  = 0xC0 // power control 1
	cmdPWCTR2  = 0xC1
	cmdPWCTR3  = 0xC2
	cmdPWCTR4  = 0xC3
	cmdPWCTR5  = 0xC4
	cmdVMCTR1  = 0xC5 // VCOM control
	cmdGMCTRP1 = 0xE0 // positive gamma correction
	cmdGMCTRN1 = 0xE1 // negative gamma correction
)

// MADCTL bits.
const (
	madMY  = 0x80 // row address order
	madMX  = 0x40 // column address order
	madMV  = 0x20 // row/column exchange
	madBGR = 0x08 // BGR color filter panel
)

// colmod16bit selects 16-bit RGB565 pixels.
const colmod16bit = 0x05
