package parallel

import "fmt"

// faceOffset returns the byte offset of (element, face) in face-major
// element storage
func (r *Remix) faceOffset(el int, fa uint16) int {
	return (el*int(r.cfg.NElFas) + int(fa)) * r.cfg.NByFa
}

func (r *Remix) checkFaceData(faceData []byte) error {
	if !r.ready {
		return ErrNotInitialized
	}
	if want := r.cfg.NEls * int(r.cfg.NElFas) * r.cfg.NByFa; len(faceData) < want {
		return fmt.Errorf("face data has %d bytes, need %d", len(faceData), want)
	}
	return nil
}

// Gather picks the send faces of all channels matching lt and tg out of
// faceData, which stores NByFa bytes for every face of every local element,
// into the send buffers.
func (r *Remix) Gather(lt bool, tg uint16, faceData []byte) error {
	if err := r.checkFaceData(faceData); err != nil {
		return err
	}
	nb := r.cfg.NByFa
	for ch := range r.channels {
		c := &r.channels[ch]
		if !CheckSendTgLt(c, lt, tg) {
			continue
		}
		buf := r.sendBufs[ch]
		for i, el := range c.Send.Elements {
			off := r.faceOffset(el, c.Send.Faces[i])
			copy(buf[i*nb:(i+1)*nb], faceData[off:off+nb])
		}
	}
	return nil
}

// Scatter places the receive buffers of all channels matching lt and tg
// at their element faces in faceData.
func (r *Remix) Scatter(lt bool, tg uint16, faceData []byte) error {
	if err := r.checkFaceData(faceData); err != nil {
		return err
	}
	nb := r.cfg.NByFa
	for ch := range r.channels {
		c := &r.channels[ch]
		if !CheckRecvTgLt(c, lt, tg) {
			continue
		}
		buf := r.recvBufs[ch]
		for i, el := range c.Recv.Elements {
			off := r.faceOffset(el, c.Recv.Faces[i])
			copy(faceData[off:off+nb], buf[i*nb:(i+1)*nb])
		}
	}
	return nil
}
