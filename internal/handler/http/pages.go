package handler

// Operator-facing helper pages. Kept deliberately plain: they exist so
// someone can pair a phone or smoke-test media sending from a browser.

const qrViewPage = `<!DOCTYPE html>
<html>
<head>
  <title>WhatsApp Gateway - Pairing</title>
  <meta charset="utf-8">
  <style>
    body { font-family: sans-serif; text-align: center; padding: 2em; }
    #qr { margin: 1em auto; }
    #state { color: #555; }
  </style>
</head>
<body>
  <h1>WhatsApp Pairing</h1>
  <p id="state">Checking status...</p>
  <div id="qr"></div>
  <script>
    async function refresh() {
      const status = await fetch('/status').then(r => r.json());
      const state = document.getElementById('state');
      const qr = document.getElementById('qr');
      if (status.isConnected) {
        state.textContent = 'Connected as ' + status.connectedNumber;
        qr.innerHTML = '';
        return;
      }
      const resp = await fetch('/qr-code');
      if (resp.status === 404) {
        state.textContent = 'No QR code available yet (' + status.clientState.state + ')';
        qr.innerHTML = '';
        return;
      }
      state.textContent = 'Scan this code with WhatsApp on your phone';
      qr.innerHTML = '<img src="/qr-image?t=' + Date.now() + '" alt="QR code">';
    }
    refresh();
    setInterval(refresh, 15000);
  </script>
</body>
</html>`

const testMediaPage = `<!DOCTYPE html>
<html>
<head>
  <title>WhatsApp Gateway - Media Test</title>
  <meta charset="utf-8">
  <style>
    body { font-family: sans-serif; max-width: 30em; margin: 2em auto; }
    label { display: block; margin-top: 1em; }
    pre { background: #f4f4f4; padding: 1em; }
  </style>
</head>
<body>
  <h1>Send Media Test</h1>
  <form id="form">
    <label>Phone number <input name="phoneNumber" required></label>
    <label>Caption <input name="caption"></label>
    <label>File <input type="file" name="media" required></label>
    <button type="submit">Send</button>
  </form>
  <pre id="result"></pre>
  <script>
    document.getElementById('form').addEventListener('submit', async (e) => {
      e.preventDefault();
      const resp = await fetch('/send-media', {
        method: 'POST',
        body: new FormData(e.target),
      });
      document.getElementById('result').textContent = JSON.stringify(await resp.json(), null, 2);
    });
  </script>
</body>
</html>`
